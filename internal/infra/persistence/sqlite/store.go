// Package sqlite persists entity repositories to an embedded SQLite file.
// Reads are served from an in-memory copy hydrated at open; every Set and
// Delete is written through to the database before the copy is updated.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"flowcore/internal/infra/persistence/memory"
	"flowcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.Repository = (*Repository)(nil)

const schema = `CREATE TABLE IF NOT EXISTS entities (
	key TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	payload BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`

// Store owns the database handle and the hydrated in-memory state.
type Store struct {
	mem  *memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating when needed) the SQLite database at path and
// loads every stored entity.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "flowcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create entities table: %w", err)
	}
	s := &Store{mem: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT kind, id, payload FROM entities`)
	if err != nil {
		return fmt.Errorf("select entities: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var kind, id string
		var payload []byte
		if err := rows.Scan(&kind, &id, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		e, err := domain.DecodeEntity(domain.Kind(kind), payload)
		if err != nil {
			return fmt.Errorf("load %s %s: %w", kind, id, err)
		}
		s.mem.Repository(domain.Kind(kind)).Put(e)
	}
	return rows.Err()
}

// Repository returns the write-through repository for kind.
func (s *Store) Repository(kind domain.Kind) *Repository {
	return &Repository{store: s, mem: s.mem.Repository(kind), kind: kind}
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Repository persists one kind.
type Repository struct {
	store *Store
	mem   *memory.Repository
	kind  domain.Kind
}

// Get serves from the hydrated copy.
func (r *Repository) Get(ctx context.Context, id string) (domain.Entity, bool, error) {
	return r.mem.Get(ctx, id)
}

// List serves from the hydrated copy.
func (r *Repository) List(ctx context.Context) ([]domain.Entity, error) {
	return r.mem.List(ctx)
}

// Set upserts the encoded entity, then updates the hydrated copy.
func (r *Repository) Set(ctx context.Context, e domain.Entity) error {
	if err := memory.Validate(r.kind, e); err != nil {
		return err
	}
	payload, err := domain.EncodeEntity(e)
	if err != nil {
		return &domain.PersistenceError{Kind: r.kind, ID: e.EntityID(), Op: "set", Err: err}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, err := r.store.db.ExecContext(ctx,
		`INSERT INTO entities(key, kind, id, payload, updated_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(key) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		rowKey(r.kind, e.EntityID()), string(r.kind), e.EntityID(), payload, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return &domain.PersistenceError{Kind: r.kind, ID: e.EntityID(), Op: "set", Err: err}
	}
	r.mem.Put(e)
	return nil
}

// Delete removes the row and the hydrated copy.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, ok, _ := r.mem.Get(ctx, id); !ok {
		return domain.NotFoundError{Kind: r.kind, ID: id}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, err := r.store.db.ExecContext(ctx, `DELETE FROM entities WHERE key = ?`, rowKey(r.kind, id)); err != nil {
		return &domain.PersistenceError{Kind: r.kind, ID: id, Op: "delete", Err: err}
	}
	return r.mem.Delete(ctx, id)
}

func rowKey(kind domain.Kind, id string) string {
	return string(kind) + "/" + id
}
