// Package store provides the local durable store: named collections
// persisted wholesale as JSON in an embedded SQLite database.
//
// The store is pure persistence. It holds two logical collections for the
// sync layer — the cached project list (one per user) and the pending
// operation queue — and knows nothing about either. Reads fail soft: a
// missing or unparseable collection comes back empty, never as an error,
// so a corrupted cache degrades to "nothing cached" instead of wedging
// the client.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/monpro/monpro/internal/schema"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	// pendingCollection is the fixed key holding the operation queue.
	pendingCollection = "pending"

	// projectsPrefix namespaces the project cache by owner.
	projectsPrefix = "projects:"
)

// Store wraps the SQLite connection holding the collections table.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the store database at path.
//
// The database is opened in WAL mode with a busy timeout so a daemon and a
// CLI invocation can share it. The caller must Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return s, nil
}

// Close closes the database, checkpointing the WAL first.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// InitSchema creates the collections table if it doesn't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS collections (
		name       TEXT PRIMARY KEY,
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return nil
}

// ReadCollection unmarshals the named collection into v.
//
// A missing collection or unparseable stored JSON leaves v at the empty
// value and returns nil. Only genuine database failures are errors.
func (s *Store) ReadCollection(ctx context.Context, name string, v any) error {
	var data string
	err := s.conn.QueryRowContext(ctx,
		"SELECT data FROM collections WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read collection %s: %w", name, err)
	}

	if err := json.Unmarshal([]byte(data), v); err != nil {
		// Corrupt payload. Treat as empty rather than failing the caller.
		fmt.Fprintf(os.Stderr, "Warning: collection %s unparseable, treating as empty: %v\n", name, err)
		return nil
	}
	return nil
}

// WriteCollection overwrites the named collection wholesale. There are no
// partial updates: callers read the full collection, mutate in memory, and
// write the full collection back.
func (s *Store) WriteCollection(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal collection %s: %w", name, err)
	}

	const q = `
	INSERT INTO collections (name, data, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.conn.ExecContext(ctx, q, name, string(data), now); err != nil {
		return fmt.Errorf("failed to write collection %s: %w", name, err)
	}
	return nil
}

// Projects returns the cached project list for a user, newest first.
func (s *Store) Projects(ctx context.Context, userID string) ([]*schema.Project, error) {
	var projects []*schema.Project
	if err := s.ReadCollection(ctx, projectsPrefix+userID, &projects); err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []*schema.Project{}
	}
	return projects, nil
}

// SaveProjects overwrites the cached project list for a user.
func (s *Store) SaveProjects(ctx context.Context, userID string, projects []*schema.Project) error {
	if projects == nil {
		projects = []*schema.Project{}
	}
	return s.WriteCollection(ctx, projectsPrefix+userID, projects)
}

// PendingOps returns the queued operations in enqueue order.
func (s *Store) PendingOps(ctx context.Context) ([]*schema.PendingOp, error) {
	var ops []*schema.PendingOp
	if err := s.ReadCollection(ctx, pendingCollection, &ops); err != nil {
		return nil, err
	}
	if ops == nil {
		ops = []*schema.PendingOp{}
	}
	return ops, nil
}

// SavePendingOps overwrites the operation queue.
func (s *Store) SavePendingOps(ctx context.Context, ops []*schema.PendingOp) error {
	if ops == nil {
		ops = []*schema.PendingOp{}
	}
	return s.WriteCollection(ctx, pendingCollection, ops)
}
