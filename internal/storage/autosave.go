package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
)

// DefaultAutosaveDelay is used when no delay is configured
const DefaultAutosaveDelay = 500 * time.Millisecond

type docKey struct {
	kind string
	id   string
}

// Autosaver coalesces document saves. Schedule records the latest bytes for
// a key; after the delay passes without another Schedule, every pending
// document is written. Flush writes immediately.
type Autosaver struct {
	repo     Repository
	logger   *slog.Logger
	debounce func(f func())

	mu      sync.Mutex
	pending map[docKey][]byte

	// serializes writes so an older save never lands after a newer one
	writeMu sync.Mutex
}

// NewAutosaver creates an autosaver writing to repo
func NewAutosaver(repo Repository, delay time.Duration, logger *slog.Logger) *Autosaver {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	return &Autosaver{
		repo:     repo,
		logger:   logger,
		debounce: debounce.New(delay),
		pending:  make(map[docKey][]byte),
	}
}

// Schedule queues doc to be saved under kind/id
func (a *Autosaver) Schedule(kind, id string, doc []byte) {
	a.mu.Lock()
	a.pending[docKey{kind, id}] = doc
	a.mu.Unlock()

	a.debounce(func() {
		if err := a.saveAll(context.Background()); err != nil {
			a.logger.Error("autosave failed", slog.String("error", err.Error()))
		}
	})
}

// Flush writes every pending document now
func (a *Autosaver) Flush(ctx context.Context) error {
	return a.saveAll(ctx)
}

// Pending returns the number of documents waiting to be written
func (a *Autosaver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Autosaver) saveAll(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	batch := a.pending
	a.pending = make(map[docKey][]byte)
	a.mu.Unlock()

	var errs []error
	for key, doc := range batch {
		if err := a.repo.SaveDocument(ctx, key.kind, key.id, doc); err != nil {
			errs = append(errs, err)
			// Keep it for the next attempt unless a newer version arrived
			a.mu.Lock()
			if _, newer := a.pending[key]; !newer {
				a.pending[key] = doc
			}
			a.mu.Unlock()
			continue
		}
		a.logger.Debug("autosaved document",
			slog.String("kind", key.kind),
			slog.String("id", key.id))
	}
	return errors.Join(errs...)
}
