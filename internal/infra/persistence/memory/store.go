// Package memory provides an in-memory implementation of the entity
// repositories used for tests and ephemeral runs. The SQLite and Postgres
// backends layer write-through persistence on top of it.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"flowcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Repository = (*Repository)(nil)

// Snapshot captures a point-in-time copy of every bucket, keyed by kind then id.
type Snapshot map[domain.Kind]map[string]domain.Entity

// Store keeps one bucket per entity kind. All reads and writes copy
// entities so callers never alias stored state.
type Store struct {
	mu      sync.RWMutex
	buckets map[domain.Kind]map[string]domain.Entity
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{buckets: make(map[domain.Kind]map[string]domain.Entity)}
}

// Repository returns the repository view for kind.
func (s *Store) Repository(kind domain.Kind) *Repository {
	return &Repository{store: s, kind: kind}
}

// Kinds returns the kinds holding at least one entity, sorted.
func (s *Store) Kinds() []domain.Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Kind, 0, len(s.buckets))
	for k, bucket := range s.buckets {
		if len(bucket) > 0 {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExportState returns a deep copy of the store contents.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(Snapshot, len(s.buckets))
	for kind, bucket := range s.buckets {
		cp := make(map[string]domain.Entity, len(bucket))
		for id, e := range bucket {
			cp[id] = e.CloneEntity()
		}
		snap[kind] = cp
	}
	return snap
}

// ImportState replaces the store contents with a copy of snap.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[domain.Kind]map[string]domain.Entity, len(snap))
	for kind, bucket := range snap {
		cp := make(map[string]domain.Entity, len(bucket))
		for id, e := range bucket {
			cp[id] = e.CloneEntity()
		}
		s.buckets[kind] = cp
	}
}

func (s *Store) get(kind domain.Kind, id string) (domain.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.buckets[kind][id]
	if !ok {
		return nil, false
	}
	return e.CloneEntity(), true
}

func (s *Store) put(kind domain.Kind, e domain.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.buckets[kind]
	if !ok {
		bucket = make(map[string]domain.Entity)
		s.buckets[kind] = bucket
	}
	bucket[e.EntityID()] = e.CloneEntity()
}

func (s *Store) remove(kind domain.Kind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[kind][id]; !ok {
		return false
	}
	delete(s.buckets[kind], id)
	return true
}

func (s *Store) list(kind domain.Kind) []domain.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.buckets[kind]
	out := make([]domain.Entity, 0, len(bucket))
	for _, e := range bucket {
		out = append(out, e.CloneEntity())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID() < out[j].EntityID() })
	return out
}

// Repository is the per-kind view of a Store.
type Repository struct {
	store *Store
	kind  domain.Kind
}

// Kind returns the entity kind served by the repository.
func (r *Repository) Kind() domain.Kind { return r.kind }

// Get returns a copy of the stored entity.
func (r *Repository) Get(_ context.Context, id string) (domain.Entity, bool, error) {
	e, ok := r.store.get(r.kind, id)
	return e, ok, nil
}

// Set stores a copy of e, replacing any previous version.
func (r *Repository) Set(_ context.Context, e domain.Entity) error {
	if err := Validate(r.kind, e); err != nil {
		return err
	}
	r.store.put(r.kind, e)
	return nil
}

// Delete removes the entity with id.
func (r *Repository) Delete(_ context.Context, id string) error {
	if !r.store.remove(r.kind, id) {
		return domain.NotFoundError{Kind: r.kind, ID: id}
	}
	return nil
}

// List returns copies of every stored entity ordered by id.
func (r *Repository) List(_ context.Context) ([]domain.Entity, error) {
	return r.store.list(r.kind), nil
}

// Put stores e without validation. Backends use it to hydrate state they
// already persisted.
func (r *Repository) Put(e domain.Entity) {
	r.store.put(r.kind, e)
}

// Validate checks that e may be stored in a repository of kind.
func Validate(kind domain.Kind, e domain.Entity) error {
	if e == nil {
		return &domain.PersistenceError{Kind: kind, Op: "set", Err: fmt.Errorf("nil entity")}
	}
	if e.EntityKind() != kind {
		return &domain.PersistenceError{Kind: kind, ID: e.EntityID(), Op: "set",
			Err: fmt.Errorf("%w: got %s", domain.ErrKindMismatch, e.EntityKind())}
	}
	if e.EntityID() == "" {
		return &domain.PersistenceError{Kind: kind, Op: "set", Err: fmt.Errorf("empty id")}
	}
	return nil
}
