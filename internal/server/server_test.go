package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangchj/inflight-sub000/internal/environment"
	"github.com/wangchj/inflight-sub000/internal/executor"
	"github.com/wangchj/inflight-sub000/internal/logging"
	"github.com/wangchj/inflight-sub000/internal/parser"
	"github.com/wangchj/inflight-sub000/internal/project"
	"github.com/wangchj/inflight-sub000/internal/session"
	"github.com/wangchj/inflight-sub000/internal/storage"
	"github.com/wangchj/inflight-sub000/internal/types"
)

type fakeExecutor struct {
	result *types.RequestResult
	err    error
	got    *types.Request
}

func (f *fakeExecutor) Execute(ctx context.Context, req *types.Request) (*types.RequestResult, error) {
	f.got = req
	return f.result, f.err
}

type memoryHistory struct {
	mu      sync.Mutex
	entries []types.HistoryEntry
}

func (h *memoryHistory) Save(requestID string, req *types.Request, result *types.RequestResult, errMsg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry := types.HistoryEntry{RequestID: requestID, Method: req.Method, URL: req.URL, Error: errMsg}
	if result != nil {
		entry.ResponseStatus = result.Response.StatusCode
	}
	h.entries = append([]types.HistoryEntry{entry}, h.entries...)
	return nil
}

func (h *memoryHistory) Load(limit int) ([]types.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit > 0 && limit < len(h.entries) {
		return h.entries[:limit], nil
	}
	return h.entries, nil
}

type fixture struct {
	srv       *httptest.Server
	session   *session.Manager
	exec      *fakeExecutor
	history   *memoryHistory
	stage     string
	beta      string
	prod      string
	requestID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.NewNopLogger()
	repo := storage.NewMemoryRepository()
	store := environment.NewStore(logger)
	sess, err := session.Open(context.Background(), repo, storage.NewAutosaver(repo, time.Hour, logger), store, "default", logger)
	require.NoError(t, err)

	f := &fixture{session: sess, exec: &fakeExecutor{}, history: &memoryHistory{}}
	require.NoError(t, sess.Update(func(p *types.Project) error {
		f.stage = project.AddDimension(p, "Stage")
		if f.beta, err = project.AddVariant(p, f.stage, "Beta", []types.Var{{Name: "host", Value: "beta"}}); err != nil {
			return err
		}
		if f.prod, err = project.AddVariant(p, f.stage, "Prod", []types.Var{{Name: "host", Value: "prod"}}); err != nil {
			return err
		}
		f.requestID, err = project.AddRequest(p, p.Tree, types.Request{Name: "Ping", Method: "GET", URL: "https://{{host}}/ping"})
		return err
	}))

	f.srv = httptest.NewServer(New(sess, f.exec, f.history, logger).Router())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, Response) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSelection(t *testing.T) {
	f := newFixture(t)

	resp, env := f.do(t, http.MethodPut, "/api/selection/"+f.stage, `{"variantId":"`+f.beta+`"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, map[string]any{"host": "beta"}, env.Data)

	_, env = f.do(t, http.MethodGet, "/api/variables", "")
	assert.Equal(t, map[string]any{"host": "beta"}, env.Data)

	resp, env = f.do(t, http.MethodDelete, "/api/selection/"+f.stage, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{}, env.Data)
}

func TestSelection_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"malformed body", "/api/selection/" + f.stage, "{", http.StatusBadRequest},
		{"missing variant", "/api/selection/" + f.stage, `{}`, http.StatusBadRequest},
		{"unknown dimension", "/api/selection/nope", `{"variantId":"` + f.beta + `"}`, http.StatusNotFound},
		{"foreign variant", "/api/selection/" + f.stage, `{"variantId":"other"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := f.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestSend(t *testing.T) {
	f := newFixture(t)
	f.exec.result = &types.RequestResult{
		RequestOptions: types.RequestOptions{Method: "GET", URL: "https://beta/ping"},
		Response:       types.Response{StatusCode: 200, StatusMessage: "OK", Data: "pong"},
		Duration:       5,
	}

	resp, err := http.Post(f.srv.URL+"/api/requests/"+f.requestID+"/send", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result types.RequestResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "pong", result.Response.Data)
	assert.Equal(t, "https://{{host}}/ping", f.exec.got.URL, "the stored template is handed to the executor")

	entries, _ := f.history.Load(0)
	require.Len(t, entries, 1)
	assert.Equal(t, f.requestID, entries[0].RequestID)
}

func TestSend_ErrorEnvelope(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantStage  string
	}{
		{
			name:       "resolve",
			err:        &executor.ExecutionError{Stage: executor.StageResolve, Err: &parser.UnresolvedVariableError{Name: "host"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantStage:  "resolve",
		},
		{
			name:       "send",
			err:        &executor.ExecutionError{Stage: executor.StageSend, Err: errors.New("connection refused")},
			wantStatus: http.StatusBadGateway,
			wantStage:  "send",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.exec.err = tt.err

			resp, env := f.do(t, http.MethodPost, "/api/requests/"+f.requestID+"/send", "")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantStage, env.Stage)
			assert.Equal(t, tt.err.Error(), env.Message)

			entries, _ := f.history.Load(0)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.err.Error(), entries[0].Error)
		})
	}
}

func TestSend_UnknownRequest(t *testing.T) {
	f := newFixture(t)
	resp, env := f.do(t, http.MethodPost, "/api/requests/nope/send", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.history.Save("r", &types.Request{Method: "GET", URL: "u"}, nil, "")
	}

	_, env := f.do(t, http.MethodGet, "/api/history?limit=2", "")
	assert.Len(t, env.Data, 2)

	resp, _ := f.do(t, http.MethodGet, "/api/history?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProject(t *testing.T) {
	f := newFixture(t)
	_, env := f.do(t, http.MethodGet, "/api/project", "")
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "project")
	assert.Contains(t, data, "selection")
}

func TestEvents(t *testing.T) {
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Event {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	initial := read()
	assert.Equal(t, "variables", initial.Type)
	assert.Empty(t, initial.Variables)

	require.NoError(t, f.session.SelectVariant(f.stage, f.prod))
	ev := read()
	assert.Equal(t, environment.VarMap{"host": "prod"}, ev.Variables)
}

func TestSendError_SetsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	SendError(rec, "nope", http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var env Response
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&env))
	assert.Equal(t, "nope", env.Message)
}

func TestLatestVars_DropsOlderCompositions(t *testing.T) {
	q := newLatestVars()

	// A composition lands before the initial snapshot read at an older seq
	q.offer(environment.VarMap{"host": "new"}, 5)
	q.offer(environment.VarMap{"host": "old"}, 4)
	assert.Equal(t, environment.VarMap{"host": "new"}, <-q.ch)

	q.offer(environment.VarMap{"host": "a"}, 6)
	q.offer(environment.VarMap{"host": "b"}, 7)
	assert.Equal(t, environment.VarMap{"host": "b"}, <-q.ch, "only the latest pending map is kept")

	q.offer(environment.VarMap{"host": "b"}, 7)
	select {
	case vars := <-q.ch:
		t.Fatalf("duplicate composition queued: %v", vars)
	default:
	}
}
