package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	filePermission = 0600
	dirPermission  = 0755
)

// JSONRepository stores each document as <base>/<kind>/<id>.json
type JSONRepository struct {
	basePath string
	logger   *slog.Logger
}

// NewJSONRepository creates a new file-based document repository
func NewJSONRepository(basePath string, logger *slog.Logger) *JSONRepository {
	return &JSONRepository{
		basePath: basePath,
		logger:   logger,
	}
}

func (r *JSONRepository) LoadDocument(ctx context.Context, kind, id string) ([]byte, error) {
	path, err := r.documentPath(kind, id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read document file: %w", err)
	}

	r.logger.Debug("loaded document",
		slog.String("kind", kind),
		slog.String("path", path))
	return data, nil
}

func (r *JSONRepository) SaveDocument(ctx context.Context, kind, id string, doc []byte) error {
	path, err := r.documentPath(kind, id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return fmt.Errorf("create document directory: %w", err)
	}

	if err := atomicWriteFile(path, doc, filePermission); err != nil {
		return fmt.Errorf("write document file: %w", err)
	}

	r.logger.Debug("saved document",
		slog.String("kind", kind),
		slog.String("path", path))
	return nil
}

func (r *JSONRepository) documentPath(kind, id string) (string, error) {
	if err := validateName(kind); err != nil {
		return "", fmt.Errorf("invalid document kind: %w", err)
	}
	if err := validateName(id); err != nil {
		return "", fmt.Errorf("invalid document id: %w", err)
	}

	path := filepath.Join(r.basePath, kind, id+".json")
	rel, err := filepath.Rel(r.basePath, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes storage directory", path)
	}
	return path, nil
}

// atomicWriteFile writes to a temp file in the same directory and renames it
// over path, so readers never observe a partial document
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("name must not contain %q", "..")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("name must not contain path separators")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("name must not contain null bytes")
	}
	return nil
}
