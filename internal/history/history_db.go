package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wangchj/inflight-sub000/internal/clock"
	"github.com/wangchj/inflight-sub000/internal/migrations"
	"github.com/wangchj/inflight-sub000/internal/types"
)

const timestampLayout = "2006-01-02 15:04:05"

// redacted replaces secret header material before it is written
const redacted = "[redacted]"

// DefaultLimit bounds Load when the caller passes a non-positive limit
const DefaultLimit = 50

type Manager struct {
	db    *sql.DB
	clock clock.Clock
}

func NewManager(dbPath string) (*Manager, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Manager{db: db, clock: clock.SystemUTC{}}, nil
}

// WithClock replaces the timestamp source
func (m *Manager) WithClock(c clock.Clock) *Manager {
	m.clock = c
	return m
}

// Save records one send. result is nil when the send failed before a
// response arrived; errMsg carries the failure in that case.
func (m *Manager) Save(requestID string, req *types.Request, result *types.RequestResult, errMsg string) error {
	var (
		headers         = req.Headers
		method          = req.Method
		url             = req.URL
		body            = req.Body
		status          int
		statusText      string
		responseHeaders map[string]string
		responseBody    string
		duration        int64
	)

	// Prefer what actually went over the wire
	if result != nil {
		opts := result.RequestOptions
		headers, method, url, body = opts.Headers, opts.Method, opts.URL, opts.Body
		status = result.Response.StatusCode
		statusText = result.Response.StatusMessage
		responseHeaders = result.Response.Headers
		responseBody = result.Response.Data
		duration = result.Duration
	}

	headersJSON, err := json.Marshal(redactHeaders(headers))
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	responseHeadersJSON, err := json.Marshal(nonNil(responseHeaders))
	if err != nil {
		return fmt.Errorf("failed to marshal response headers: %w", err)
	}

	query := `
		INSERT INTO history (
			timestamp, request_id, request_name, method, url, headers, body,
			response_status, response_status_text, response_headers, response_body,
			duration_ms, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = m.db.Exec(query,
		m.clock.NowUTC().Format(timestampLayout),
		requestID,
		req.Name,
		method,
		url,
		string(headersJSON),
		body,
		status,
		statusText,
		string(responseHeadersJSON),
		responseBody,
		duration,
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}

	return nil
}

// Load returns the most recent entries, newest first
func (m *Manager) Load(limit int) ([]types.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := m.db.Query(`
		SELECT id, timestamp, request_id, request_name, method, url, headers, body,
		       response_status, response_status_text, response_headers, response_body,
		       duration_ms, error
		FROM history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	return m.scanEntries(rows)
}

// LoadForRequest returns the entries recorded for one request, newest first
func (m *Manager) LoadForRequest(requestID string) ([]types.HistoryEntry, error) {
	rows, err := m.db.Query(`
		SELECT id, timestamp, request_id, request_name, method, url, headers, body,
		       response_status, response_status_text, response_headers, response_body,
		       duration_ms, error
		FROM history
		WHERE request_id = ?
		ORDER BY id DESC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for request: %w", err)
	}
	defer rows.Close()

	return m.scanEntries(rows)
}

func (m *Manager) scanEntries(rows *sql.Rows) ([]types.HistoryEntry, error) {
	entries := []types.HistoryEntry{}

	for rows.Next() {
		var (
			entry               types.HistoryEntry
			timestamp           string
			requestName         sql.NullString
			headersJSON         string
			body                sql.NullString
			responseHeadersJSON string
			errorMsg            sql.NullString
		)

		err := rows.Scan(
			&entry.ID,
			&timestamp,
			&entry.RequestID,
			&requestName,
			&entry.Method,
			&entry.URL,
			&headersJSON,
			&body,
			&entry.ResponseStatus,
			&entry.StatusMessage,
			&responseHeadersJSON,
			&entry.ResponseBody,
			&entry.Duration,
			&errorMsg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}

		if err := json.Unmarshal([]byte(headersJSON), &entry.Headers); err != nil {
			entry.Headers = make(map[string]string)
		}
		if err := json.Unmarshal([]byte(responseHeadersJSON), &entry.ResponseHeaders); err != nil {
			entry.ResponseHeaders = make(map[string]string)
		}

		// go-sqlite3 may hand DATETIME columns back as RFC 3339
		parsed, err := time.ParseInLocation(timestampLayout, timestamp, time.UTC)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, timestamp)
		}
		if err == nil {
			entry.Timestamp = parsed.Format(time.RFC3339)
		} else {
			entry.Timestamp = timestamp
		}

		entry.RequestName = requestName.String
		entry.Body = body.String
		entry.Error = errorMsg.String

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (m *Manager) Clear() error {
	_, err := m.db.Exec("DELETE FROM history")
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (m *Manager) Delete(id int64) error {
	_, err := m.db.Exec("DELETE FROM history WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	return nil
}

func (m *Manager) GetCount() (int, error) {
	var count int
	err := m.db.QueryRow("SELECT COUNT(*) FROM history").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get history count: %w", err)
	}
	return count, nil
}

func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// redactHeaders returns a copy of headers without signing secrets: the
// session token is dropped to a placeholder and the Authorization
// signature is cut. Names match case-insensitively.
func redactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		switch strings.ToLower(name) {
		case "x-amz-security-token":
			value = redacted
		case "authorization":
			value = redactSignature(value)
		}
		out[name] = value
	}
	return out
}

// redactSignature keeps the credential scope and signed headers of a SigV4
// Authorization value
func redactSignature(value string) string {
	if !strings.HasPrefix(value, "AWS4-HMAC-SHA256 ") {
		return value
	}
	i := strings.Index(value, "Signature=")
	if i < 0 {
		return value
	}
	return value[:i+len("Signature=")] + redacted
}
