package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wangchj/inflight-sub000/internal/migrations"
)

// SQLiteRepository stores documents in the documents table
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at dbPath and brings its
// schema up to date
func OpenSQLite(dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, logger: logger}, nil
}

// DB exposes the handle for other stores sharing the file
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

func (r *SQLiteRepository) LoadDocument(ctx context.Context, kind, id string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE kind = ? AND id = ?", kind, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", kind, id, err)
	}

	r.logger.Debug("loaded document",
		slog.String("kind", kind),
		slog.String("id", id),
		slog.Int("bytes", len(data)))
	return data, nil
}

func (r *SQLiteRepository) SaveDocument(ctx context.Context, kind, id string, doc []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (kind, id, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(kind, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, kind, id, doc)
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", kind, id, err)
	}

	r.logger.Debug("saved document",
		slog.String("kind", kind),
		slog.String("id", id),
		slog.Int("bytes", len(doc)))
	return nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
