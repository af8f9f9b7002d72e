// Package server exposes the pipeline to a presentation layer over a local
// HTTP API. Variable changes are pushed over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/wangchj/inflight-sub000/internal/environment"
	"github.com/wangchj/inflight-sub000/internal/session"
	"github.com/wangchj/inflight-sub000/internal/types"
)

const (
	writeWait       = 10 * time.Second
	shutdownTimeout = 10 * time.Second
	maxBodySize     = 1 << 20
)

// Executor sends a stored request with the current variables
type Executor interface {
	Execute(ctx context.Context, req *types.Request) (*types.RequestResult, error)
}

// History records and lists sends
type History interface {
	Save(requestID string, req *types.Request, result *types.RequestResult, errMsg string) error
	Load(limit int) ([]types.HistoryEntry, error)
}

// Server holds the handlers of the local API
type Server struct {
	session  *session.Manager
	store    *environment.Store
	executor Executor
	history  History
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a server. history may be nil.
func New(sess *session.Manager, executor Executor, history History, logger *slog.Logger) *Server {
	return &Server{
		session:  sess,
		store:    sess.Store(),
		executor: executor,
		history:  history,
		logger:   logger,
	}
}

// Router creates a chi router with all routes configured
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/project", s.handleProject)
		r.Get("/variables", s.handleVariables)
		r.Put("/selection/{dimensionID}", s.handleSelect)
		r.Delete("/selection/{dimensionID}", s.handleClearSelection)
		r.Post("/requests/{requestID}/send", s.handleSend)
		r.Get("/history", s.handleHistory)
		r.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, map[string]any{
		"project":   s.session.Project(),
		"selection": s.session.Selection(),
	})
}

func (s *Server) handleVariables(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, s.store.Snapshot())
}

type selectRequest struct {
	VariantID string `json:"variantId"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	dimensionID := chi.URLParam(r, "dimensionID")

	var body selectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil {
		SendError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if body.VariantID == "" {
		SendError(w, "variantId is required", http.StatusBadRequest)
		return
	}

	if err := s.session.SelectVariant(dimensionID, body.VariantID); err != nil {
		SendFailure(w, err)
		return
	}
	SendSuccess(w, s.store.Snapshot())
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ClearVariant(chi.URLParam(r, "dimensionID")); err != nil {
		SendFailure(w, err)
		return
	}
	SendSuccess(w, s.store.Snapshot())
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	id, req, err := s.session.FindRequest(requestID)
	if err != nil {
		SendFailure(w, err)
		return
	}

	result, execErr := s.executor.Execute(r.Context(), req)

	if s.history != nil {
		errMsg := ""
		if execErr != nil {
			errMsg = execErr.Error()
		}
		if err := s.history.Save(id, req, result, errMsg); err != nil {
			s.logger.Warn("failed to save history", slog.String("error", err.Error()))
		}
	}

	if execErr != nil {
		SendFailure(w, execErr)
		return
	}
	SendJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		SendSuccess(w, []types.HistoryEntry{})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			SendError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.history.Load(limit)
	if err != nil {
		SendFailure(w, err)
		return
	}
	SendSuccess(w, entries)
}

// Event is pushed to /api/events subscribers
type Event struct {
	Type      string             `json:"type"`
	Variables environment.VarMap `json:"variables"`
}

// handleEvents streams the composed variables: the current map on connect,
// then every new composition. A slow client only receives the latest map.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	updates := newLatestVars()
	unsubscribe := s.store.SubscribeVersioned(updates.offer)
	defer unsubscribe()
	updates.offer(s.store.Versioned())

	// The read loop only detects the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case vars := <-updates.ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Event{Type: "variables", Variables: vars}); err != nil {
				s.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// latestVars queues at most one map for a websocket writer. A map older
// than one already offered is dropped, so a late initial snapshot cannot
// replace a newer composition.
type latestVars struct {
	mu      sync.Mutex
	ch      chan environment.VarMap
	seq     uint64
	offered bool
}

func newLatestVars() *latestVars {
	return &latestVars{ch: make(chan environment.VarMap, 1)}
}

func (l *latestVars) offer(vars environment.VarMap, seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.offered && seq <= l.seq {
		return
	}
	l.seq, l.offered = seq, true

	// Replace the pending map; offer is the only sender
	select {
	case <-l.ch:
	default:
	}
	l.ch <- vars
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
