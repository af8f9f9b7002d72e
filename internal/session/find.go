package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/wangchj/inflight-sub000/internal/project"
	"github.com/wangchj/inflight-sub000/internal/types"
)

const maxSuggestions = 5

// RequestNotFoundError carries the closest request paths for a failed lookup
type RequestNotFoundError struct {
	Query       string
	Suggestions []string
}

func (e *RequestNotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("request %q not found", e.Query)
	}
	return fmt.Sprintf("request %q not found, did you mean: %s", e.Query, strings.Join(e.Suggestions, ", "))
}

func (e *RequestNotFoundError) Unwrap() error {
	return project.ErrNotFound
}

// AmbiguousRequestError is returned when a name matches more than one request
type AmbiguousRequestError struct {
	Query string
	Paths []string
}

func (e *AmbiguousRequestError) Error() string {
	return fmt.Sprintf("request name %q is ambiguous: %s", e.Query, strings.Join(e.Paths, ", "))
}

// FindRequest looks a request up by id, then by path ("folder/name"), then by
// case-insensitive name
func (m *Manager) FindRequest(query string) (string, *types.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if req, ok := m.project.Requests[query]; ok {
		return query, req.Clone(), nil
	}

	var (
		paths   []string
		byPath  = make(map[string]string)
		matches []string
	)
	err := project.Walk(m.project, func(n project.Node) error {
		if n.Kind != types.ResourceRequest {
			return nil
		}
		paths = append(paths, n.Path)
		byPath[n.Path] = n.ID
		if strings.EqualFold(n.Name, query) {
			matches = append(matches, n.Path)
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	if id, ok := byPath[query]; ok {
		req := m.project.Requests[id]
		return id, req.Clone(), nil
	}

	switch len(matches) {
	case 1:
		id := byPath[matches[0]]
		req := m.project.Requests[id]
		return id, req.Clone(), nil
	case 0:
		return "", nil, &RequestNotFoundError{Query: query, Suggestions: suggest(query, paths)}
	default:
		return "", nil, &AmbiguousRequestError{Query: query, Paths: matches}
	}
}

func suggest(query string, paths []string) []string {
	var out []string
	for _, match := range fuzzy.Find(query, paths) {
		out = append(out, match.Str)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// IsNotFound reports whether err is a failed request or document lookup
func IsNotFound(err error) bool {
	return errors.Is(err, project.ErrNotFound)
}
