// Package postgres provides a Postgres-backed repository store that mirrors
// the in-memory semantics. Entities are hydrated once at open and every
// mutation is written through as a JSONB row before the in-memory copy moves.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"flowcore/internal/infra/persistence/memory"
	"flowcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.Repository = (*Repository)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/flowcore?sslmode=disable"
)

const schema = `CREATE TABLE IF NOT EXISTS entities (
	key TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists entity rows to Postgres.
type Store struct {
	mem *memory.Store
	db  *sql.DB
	mu  sync.Mutex
}

// NewStore opens a Postgres-backed store using dsn (falls back to
// defaultDSN), ensures the entities table exists and hydrates every row.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create entities table: %w", err)
	}
	s := &Store{mem: memory.NewStore(), db: db}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, id, payload FROM entities`)
	if err != nil {
		return fmt.Errorf("select entities: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var kind, id string
		var payload []byte
		if err := rows.Scan(&kind, &id, &payload); err != nil {
			return fmt.Errorf("scan entity: %w", err)
		}
		e, err := domain.DecodeEntity(domain.Kind(kind), payload)
		if err != nil {
			return fmt.Errorf("decode %s %s: %w", kind, id, err)
		}
		s.mem.Repository(domain.Kind(kind)).Put(e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate entities: %w", err)
	}
	return nil
}

// Repository returns the write-through repository for kind.
func (s *Store) Repository(kind domain.Kind) *Repository {
	return &Repository{store: s, mem: s.mem.Repository(kind), kind: kind}
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

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

// List serves from the hydrated copy; kinds are separated in memory so a
// single unfiltered load at open is enough.
func (r *Repository) List(ctx context.Context) ([]domain.Entity, error) {
	return r.mem.List(ctx)
}

// Set upserts the JSONB payload, then updates the hydrated copy.
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
		`INSERT INTO entities (key, kind, id, payload, updated_at) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		rowKey(r.kind, e.EntityID()), string(r.kind), e.EntityID(), string(payload), time.Now().UTC(),
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
	if _, err := r.store.db.ExecContext(ctx, `DELETE FROM entities WHERE key = $1`, rowKey(r.kind, id)); err != nil {
		return &domain.PersistenceError{Kind: r.kind, ID: id, Op: "delete", Err: err}
	}
	return r.mem.Delete(ctx, id)
}

func rowKey(kind domain.Kind, id string) string {
	return string(kind) + "/" + id
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
