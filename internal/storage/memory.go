package storage

import (
	"bytes"
	"context"
	"sync"
)

// MemoryRepository keeps documents in process memory
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string][]byte)}
}

func (r *MemoryRepository) LoadDocument(ctx context.Context, kind, id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[kind+"/"+id]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(doc), nil
}

func (r *MemoryRepository) SaveDocument(ctx context.Context, kind, id string, doc []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[kind+"/"+id] = bytes.Clone(doc)
	return nil
}
