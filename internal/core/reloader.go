package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"flowcore/pkg/domain"
)

// MissingEntityPolicy decides what Reload does when the canonical entity
// does not exist.
type MissingEntityPolicy string

const (
	// MissingStrict fails with domain.NotFoundError.
	MissingStrict MissingEntityPolicy = "strict"
	// MissingReturnLocal hands back the local handle unchanged.
	MissingReturnLocal MissingEntityPolicy = "return_local"
)

// ParseMissingEntityPolicy validates a configured policy name. Empty
// selects MissingStrict.
func ParseMissingEntityPolicy(s string) (MissingEntityPolicy, error) {
	switch MissingEntityPolicy(s) {
	case "", MissingStrict:
		return MissingStrict, nil
	case MissingReturnLocal:
		return MissingReturnLocal, nil
	default:
		return "", fmt.Errorf("unknown missing entity policy %q", s)
	}
}

// ManagerSource resolves repositories by kind. *Registry implements it.
type ManagerSource interface {
	Manager(kind domain.Kind) (domain.Repository, error)
}

// ReloaderOption customizes a Reloader.
type ReloaderOption func(*Reloader)

// WithMissing sets the missing-entity policy.
func WithMissing(p MissingEntityPolicy) ReloaderOption {
	return func(r *Reloader) { r.missing = p }
}

// WithLocks sets the per-entity lock provider.
func WithLocks(l LockProvider) ReloaderOption {
	return func(r *Reloader) {
		if l != nil {
			r.locks = l
		}
	}
}

// WithPublisher sets where committed change events go.
func WithPublisher(p domain.Publisher) ReloaderOption {
	return func(r *Reloader) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithReloaderClock sets the event timestamp source.
func WithReloaderClock(c Clock) ReloaderOption {
	return func(r *Reloader) {
		if c != nil {
			r.clock = c
		}
	}
}

// Reloader swaps possibly stale local handles for the canonical copy held
// by the managers, merges uncommitted property changes onto it, and owns
// the commit path every accessor goes through.
type Reloader struct {
	managers  ManagerSource
	missing   MissingEntityPolicy
	locks     LockProvider
	publisher domain.Publisher
	clock     Clock
	depth     atomic.Int64
}

// NewReloader returns a reloader over managers.
func NewReloader(managers ManagerSource, opts ...ReloaderOption) *Reloader {
	r := &Reloader{
		managers:  managers,
		missing:   MissingStrict,
		locks:     NewKeyedMutex(),
		publisher: domain.PublisherFunc(func(domain.Event) {}),
		clock:     ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Manager returns the repository for kind.
func (r *Reloader) Manager(kind domain.Kind) (domain.Repository, error) {
	return r.managers.Manager(kind)
}

// Policy returns the configured missing-entity policy.
func (r *Reloader) Policy() MissingEntityPolicy { return r.missing }

// Reload returns the canonical entity for local. local is returned as is
// while suppression is active, or when the id is absent and the policy is
// MissingReturnLocal. When local has an open edit context its pending
// property changes are layered onto the canonical copy and the canonical
// properties are pointed back at local.
func (r *Reloader) Reload(ctx context.Context, kind domain.Kind, local domain.Entity) (domain.Entity, error) {
	if local == nil {
		return nil, fmt.Errorf("reload %s: nil entity", kind)
	}
	if r.Suppressing() || reloadSuppressed(ctx) {
		return local, nil
	}
	repo, err := r.managers.Manager(kind)
	if err != nil {
		return nil, err
	}
	canonical, ok, err := repo.Get(ctx, local.EntityID())
	if err != nil {
		return nil, persistenceErr(kind, local.EntityID(), "get", err)
	}
	if !ok {
		if r.missing == MissingReturnLocal {
			return local, nil
		}
		return nil, domain.NotFoundError{Kind: kind, ID: local.EntityID()}
	}
	if canonical.EntityKind() != kind {
		return nil, fmt.Errorf("reload %s %s: %w: got %s", kind, local.EntityID(), domain.ErrKindMismatch, canonical.EntityKind())
	}
	if domain.InContext(local) {
		if src := local.Props(); src != nil {
			dst := domain.EnsureProps(canonical)
			dst.MergePending(src)
			dst.SetOwner(local)
		}
	}
	return canonical, nil
}

// Suppress enters the process-wide suppression scope. The returned release
// function leaves it and may be called any number of times.
func (r *Reloader) Suppress() (release func()) {
	r.depth.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { r.depth.Add(-1) })
	}
}

// WithSuppression runs fn inside the suppression scope. The scope is left
// on every exit path, including a panic.
func (r *Reloader) WithSuppression(fn func() error) error {
	release := r.Suppress()
	defer release()
	return fn()
}

// Suppressing reports whether the process-wide scope is active.
func (r *Reloader) Suppressing() bool {
	return r.depth.Load() > 0
}

type noReloadKey struct{}

// WithoutReload marks ctx so reloads made with it return the local handle.
// Unlike Suppress it only affects calls that carry the context.
func WithoutReload(ctx context.Context) context.Context {
	return context.WithValue(ctx, noReloadKey{}, true)
}

func reloadSuppressed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(noReloadKey{}).(bool)
	return v
}

// Create stores a new entity and publishes a CREATE event.
func (r *Reloader) Create(ctx context.Context, e domain.Entity) error {
	kind := e.EntityKind()
	repo, err := r.managers.Manager(kind)
	if err != nil {
		return err
	}
	unlock := r.locks.Lock(lockKey(kind, e.EntityID()))
	defer unlock()
	if err := repo.Set(WithoutReload(ctx), e); err != nil {
		return persistenceErr(kind, e.EntityID(), "set", err)
	}
	r.publisher.Publish(domain.NewEvent(e, domain.OperationCreate, "", nil, r.clock.Now()))
	return nil
}

// commit runs the locked reload, apply, persist and notify sequence for
// handle. guard, when set, vets the canonical entity before anything is
// applied. Writes are applied to the canonical entity only when the reload
// returned a different object than handle. Pending property changes merged
// by the reload are applied after the writes, then one Set is issued and
// events are published in order.
func (r *Reloader) commit(ctx context.Context, kind domain.Kind, handle domain.Entity, writes []domain.PendingWrite, guard func(domain.Entity) error) error {
	repo, err := r.managers.Manager(kind)
	if err != nil {
		return err
	}
	unlock := r.locks.Lock(lockKey(kind, handle.EntityID()))
	defer unlock()

	canonical, err := r.Reload(ctx, kind, handle)
	if err != nil {
		return err
	}
	// When the reload is suppressed or the id is absent under
	// MissingReturnLocal, canonical is the handle, which already holds every
	// write. There is no separate canonical state to guard or update.
	detached := canonical != handle
	if guard != nil && detached {
		if err := guard(canonical); err != nil {
			return err
		}
	}
	if detached {
		for _, w := range writes {
			if w.Apply != nil {
				w.Apply(canonical)
			}
		}
	}
	props := canonical.Props()
	if props != nil {
		props.ApplyPending()
	}
	if err := repo.Set(WithoutReload(ctx), canonical); err != nil {
		return persistenceErr(kind, handle.EntityID(), "set", err)
	}
	if props != nil {
		props.ClearPending()
	}
	if p := handle.Props(); p != nil {
		p.ClearPending()
	}
	for _, w := range writes {
		r.publisher.Publish(w.Event)
	}
	return nil
}

func (r *Reloader) now() time.Time { return r.clock.Now() }

func persistenceErr(kind domain.Kind, id, op string, err error) error {
	var pe *domain.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &domain.PersistenceError{Kind: kind, ID: id, Op: op, Err: err}
}
