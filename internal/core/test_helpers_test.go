package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"flowcore/internal/infra/persistence/memory"
	"flowcore/pkg/domain"
)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) add(s string) {
	c.mu.Lock()
	c.calls = append(c.calls, s)
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add("d:" + msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add("i:" + msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add("w:" + msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add("e:" + msg) }

func (c *captureLogger) has(call string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, got := range c.calls {
		if got == call {
			return true
		}
	}
	return false
}

// countingRepo counts Set calls and can be told to fail them. afterGet,
// when set, runs once right after the next successful Get has read its
// result, which lets a test slip a competing write in between a load and
// the commit that follows it.
type countingRepo struct {
	domain.Repository
	mu       sync.Mutex
	sets     int
	failSet  error
	afterGet func()
}

func (c *countingRepo) Get(ctx context.Context, id string) (domain.Entity, bool, error) {
	e, ok, err := c.Repository.Get(ctx, id)
	c.mu.Lock()
	hook := c.afterGet
	if ok && err == nil {
		c.afterGet = nil
	}
	c.mu.Unlock()
	if hook != nil && ok && err == nil {
		hook()
	}
	return e, ok, err
}

// interleave arranges for fn to run after the next Get on kind.
func (f *fixture) interleave(kind domain.Kind, fn func()) {
	repo := f.repos[kind]
	repo.mu.Lock()
	repo.afterGet = fn
	repo.mu.Unlock()
}

func (c *countingRepo) Set(ctx context.Context, e domain.Entity) error {
	c.mu.Lock()
	c.sets++
	fail := c.failSet
	c.mu.Unlock()
	if fail != nil {
		return fail
	}
	return c.Repository.Set(ctx, e)
}

func (c *countingRepo) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func (c *countingRepo) reset() {
	c.mu.Lock()
	c.sets = 0
	c.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) Publish(ev domain.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Event(nil), l.events...)
}

func (l *eventLog) attributes() []string {
	var out []string
	for _, ev := range l.all() {
		out = append(out, ev.AttributeName)
	}
	return out
}

type fixture struct {
	store  *memory.Store
	repos  map[domain.Kind]*countingRepo
	reg    *Registry
	r      *Reloader
	events *eventLog
}

func newFixture(t *testing.T, opts ...ReloaderOption) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		repos:  make(map[domain.Kind]*countingRepo),
		events: &eventLog{},
	}
	factories := RepositoryFactories(func(kind domain.Kind) domain.Repository {
		repo := &countingRepo{Repository: f.store.Repository(kind)}
		f.repos[kind] = repo
		return repo
	})
	reg, err := BuildRegistry(context.Background(), factories)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	f.reg = reg
	base := []ReloaderOption{WithPublisher(f.events), WithReloaderClock(stubClock{t: fixedNow})}
	f.r = NewReloader(reg, append(base, opts...)...)
	return f
}

// seed stores e directly, bypassing the reloader.
func (f *fixture) seed(t *testing.T, e domain.Entity) {
	t.Helper()
	domain.EnsureProps(e)
	if err := f.store.Repository(e.EntityKind()).Set(context.Background(), e); err != nil {
		t.Fatalf("seed %s: %v", e.EntityID(), err)
	}
}

func (f *fixture) canonical(t *testing.T, kind domain.Kind, id string) domain.Entity {
	t.Helper()
	e, ok, err := f.store.Repository(kind).Get(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("get %s %s: ok=%v err=%v", kind, id, ok, err)
	}
	return e
}

func newMemoryService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(RepositoryFactories(func(kind domain.Kind) domain.Repository {
		return store.Repository(kind)
	}), opts...)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}
