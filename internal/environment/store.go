package environment

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wangchj/inflight-sub000/internal/types"
)

// Store holds the variables produced by the last composition. Readers always
// observe a complete map: Compose builds the new map first and publishes it
// with a single pointer swap.
type Store struct {
	current atomic.Pointer[published]
	logger  *slog.Logger

	composeMu sync.Mutex
	seq       uint64

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(VarMap, uint64)
}

// published pairs a map with the sequence number of its composition
type published struct {
	vars VarMap
	seq  uint64
}

// NewStore creates an empty store at sequence 0
func NewStore(logger *slog.Logger) *Store {
	s := &Store{
		logger:    logger,
		listeners: make(map[int]func(VarMap, uint64)),
	}
	s.current.Store(&published{vars: VarMap{}})
	return s
}

// Compose recomputes the variables from project and selection, replaces the
// current map and notifies subscribers. Every composition gets the next
// sequence number.
func (s *Store) Compose(project *types.Project, selection types.Selection) VarMap {
	vars := Combine(project, selection)

	s.composeMu.Lock()
	s.seq++
	seq := s.seq
	s.current.Store(&published{vars: vars, seq: seq})
	s.composeMu.Unlock()

	s.logger.Debug("composed variables",
		slog.Uint64("seq", seq),
		slog.Int("dimensions", len(selection)),
		slog.Int("variables", len(vars)))

	s.notify(vars, seq)
	return vars
}

// Snapshot returns the current map. Callers must not modify it.
func (s *Store) Snapshot() VarMap {
	return s.current.Load().vars
}

// Versioned returns the current map with its sequence number
func (s *Store) Versioned() (VarMap, uint64) {
	p := s.current.Load()
	return p.vars, p.seq
}

// Lookup returns the value bound to name in the current map
func (s *Store) Lookup(name string) (string, bool) {
	return s.Snapshot().Lookup(name)
}

// Subscribe registers fn to be called after every composition. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(VarMap)) func() {
	return s.SubscribeVersioned(func(vars VarMap, _ uint64) { fn(vars) })
}

// SubscribeVersioned is Subscribe with the sequence number of each
// composition. Notifications of concurrent compositions may arrive out of
// order; the sequence number orders them.
func (s *Store) SubscribeVersioned(fn func(VarMap, uint64)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(vars VarMap, seq uint64) {
	s.mu.Lock()
	fns := make([]func(VarMap, uint64), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(vars, seq)
	}
}
