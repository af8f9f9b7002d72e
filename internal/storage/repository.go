package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by LoadDocument when nothing was saved under the key
var ErrNotFound = errors.New("document not found")

// Document kinds
const (
	KindProject   = "project"
	KindWorkspace = "workspace"
)

// Repository is an opaque key-value store for serialized documents
type Repository interface {
	LoadDocument(ctx context.Context, kind, id string) ([]byte, error)
	SaveDocument(ctx context.Context, kind, id string, doc []byte) error
}
