package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Stats aggregates the recorded sends of one stored request
type Stats struct {
	RequestID     string      `json:"requestId"`
	RequestName   string      `json:"requestName,omitempty"`
	TotalCalls    int         `json:"totalCalls"`
	SuccessCount  int         `json:"successCount"`
	ErrorCount    int         `json:"errorCount"`
	Failures      int         `json:"failures"` // no response: resolve, sign or transport errors
	AvgDurationMs float64     `json:"avgDurationMs"`
	MinDurationMs int64       `json:"minDurationMs"`
	MaxDurationMs int64       `json:"maxDurationMs"`
	TotalReqSize  int64       `json:"totalRequestSize"`
	TotalRespSize int64       `json:"totalResponseSize"`
	StatusCodes   map[int]int `json:"statusCodes"`
	LastCalled    time.Time   `json:"lastCalled"`
}

// Stats returns per-request aggregates, most recently sent first. An empty
// requestID covers every request.
func (m *Manager) Stats(requestID string) ([]Stats, error) {
	query := `
		WITH status_codes_agg AS (
			SELECT
				request_id,
				json_group_object(CAST(response_status AS TEXT), count) AS status_codes_json
			FROM (
				SELECT request_id, response_status, COUNT(*) AS count
				FROM history
				WHERE response_status > 0 AND (request_id = ? OR ? = '')
				GROUP BY request_id, response_status
			)
			GROUP BY request_id
		)
		SELECT
			h.request_id,
			COALESCE(MAX(h.request_name), ''),
			COUNT(*) AS total_calls,
			SUM(CASE WHEN h.response_status >= 200 AND h.response_status < 300 THEN 1 ELSE 0 END),
			SUM(CASE WHEN h.response_status >= 400 THEN 1 ELSE 0 END),
			SUM(CASE WHEN h.response_status = 0 THEN 1 ELSE 0 END),
			AVG(h.duration_ms),
			MIN(h.duration_ms),
			MAX(h.duration_ms),
			SUM(LENGTH(COALESCE(h.body, ''))),
			SUM(LENGTH(h.response_body)),
			MAX(h.timestamp) AS last_called,
			COALESCE(s.status_codes_json, '{}')
		FROM history h
		LEFT JOIN status_codes_agg s ON h.request_id = s.request_id
		WHERE h.request_id = ? OR ? = ''
		GROUP BY h.request_id
		ORDER BY last_called DESC, h.request_id
	`

	rows, err := m.db.Query(query, requestID, requestID, requestID, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history stats: %w", err)
	}
	defer rows.Close()

	statsList := []Stats{}
	for rows.Next() {
		var (
			s               Stats
			lastCalled      sql.NullString
			statusCodesJSON string
		)
		err := rows.Scan(
			&s.RequestID,
			&s.RequestName,
			&s.TotalCalls,
			&s.SuccessCount,
			&s.ErrorCount,
			&s.Failures,
			&s.AvgDurationMs,
			&s.MinDurationMs,
			&s.MaxDurationMs,
			&s.TotalReqSize,
			&s.TotalRespSize,
			&lastCalled,
			&statusCodesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}

		if lastCalled.Valid {
			if t, err := time.ParseInLocation(timestampLayout, lastCalled.String, time.UTC); err == nil {
				s.LastCalled = t
			}
		}

		s.StatusCodes, err = parseStatusCodes(statusCodesJSON)
		if err != nil {
			return nil, err
		}

		statsList = append(statsList, s)
	}

	return statsList, rows.Err()
}

// parseStatusCodes converts the JSON object built by json_group_object
func parseStatusCodes(raw string) (map[int]int, error) {
	var byText map[string]int
	if err := json.Unmarshal([]byte(raw), &byText); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status codes: %w", err)
	}

	codes := make(map[int]int, len(byText))
	for text, count := range byText {
		code, err := strconv.Atoi(text)
		if err != nil {
			continue
		}
		codes[code] = count
	}
	return codes, nil
}
