package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wangchj/inflight-sub000/internal/executor"
	"github.com/wangchj/inflight-sub000/internal/project"
	"github.com/wangchj/inflight-sub000/internal/session"
)

// Response is the envelope of every endpoint except send, which returns
// the result itself on success
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// SendJSON sends a JSON response with the given status
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// SendSuccess sends a success envelope
func SendSuccess(w http.ResponseWriter, data any) {
	SendJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// SendError sends an error envelope
func SendError(w http.ResponseWriter, message string, statusCode int) {
	SendJSON(w, statusCode, Response{Success: false, Message: message})
}

// SendFailure maps err to a status code and an error envelope. Execution
// errors carry their stage.
func SendFailure(w http.ResponseWriter, err error) {
	var execErr *executor.ExecutionError
	if errors.As(err, &execErr) {
		status := http.StatusUnprocessableEntity
		if execErr.Stage == executor.StageSend {
			status = http.StatusBadGateway
		}
		SendJSON(w, status, Response{
			Success: false,
			Message: execErr.Error(),
			Stage:   string(execErr.Stage),
		})
		return
	}

	var ambiguous *session.AmbiguousRequestError
	switch {
	case errors.Is(err, project.ErrNotFound):
		SendError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrVariantMismatch), errors.As(err, &ambiguous):
		SendError(w, err.Error(), http.StatusBadRequest)
	default:
		SendError(w, err.Error(), http.StatusInternalServerError)
	}
}
