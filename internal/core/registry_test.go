package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"flowcore/internal/infra/persistence/memory"
	"flowcore/pkg/domain"
)

type stubExtension struct {
	name   string
	active bool
	extra  map[domain.Kind]domain.Repository
	err    error
	calls  int
}

func (s *stubExtension) Name() string { return s.name }
func (s *stubExtension) Active() bool { return s.active }
func (s *stubExtension) Managers(_ context.Context, _ Managers) (map[domain.Kind]domain.Repository, error) {
	s.calls++
	return s.extra, s.err
}

func TestBuildRegistryOrder(t *testing.T) {
	store := memory.NewStore()
	var order []domain.Kind
	var seen [][]domain.Kind
	factories := Factories{}
	for _, kind := range domain.BuiltinKinds() {
		kind := kind
		factories[kind] = func(_ context.Context, built Managers) (domain.Repository, error) {
			order = append(order, kind)
			var have []domain.Kind
			for k := range built {
				have = append(have, k)
			}
			seen = append(seen, have)
			return store.Repository(kind), nil
		}
	}
	if _, err := BuildRegistry(context.Background(), factories); err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []domain.Kind{domain.KindDataNode, domain.KindCycle, domain.KindTask, domain.KindJob, domain.KindSubmission, domain.KindScenario, domain.KindSequence}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range order {
		if len(seen[i]) != i {
			t.Fatalf("factory %s saw %d managers, want %d", order[i], len(seen[i]), i)
		}
	}
}

func TestBuildRegistryErrors(t *testing.T) {
	store := memory.NewStore()
	full := RepositoryFactories(func(kind domain.Kind) domain.Repository { return store.Repository(kind) })

	missing := Factories{}
	for k, v := range full {
		if k != domain.KindJob {
			missing[k] = v
		}
	}
	failing := Factories{}
	for k, v := range full {
		failing[k] = v
	}
	failing[domain.KindCycle] = func(context.Context, Managers) (domain.Repository, error) {
		return nil, errors.New("boom")
	}

	cases := []struct {
		name      string
		factories Factories
		want      string
	}{
		{"missing factory", missing, "no manager factory for kind job"},
		{"factory error", failing, "build cycle manager: boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildRegistry(context.Background(), tc.factories)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestRepositoryFactoriesRequireDependencies(t *testing.T) {
	store := memory.NewStore()
	factories := RepositoryFactories(func(kind domain.Kind) domain.Repository { return store.Repository(kind) })
	if _, err := factories[domain.KindJob](context.Background(), Managers{}); err == nil {
		t.Fatalf("expected job factory to require the task manager")
	}
}

func TestRegistryExtensions(t *testing.T) {
	store := memory.NewStore()
	factories := RepositoryFactories(func(kind domain.Kind) domain.Repository { return store.Repository(kind) })
	override := memory.NewStore().Repository(domain.KindJob)
	active := &stubExtension{name: "archive", active: true, extra: map[domain.Kind]domain.Repository{
		domain.KindJob: override,
		"report":       memory.NewStore().Repository("report"),
	}}
	inactive := &stubExtension{name: "off", extra: map[domain.Kind]domain.Repository{"ghost": override}}

	reg, err := BuildRegistry(context.Background(), factories, active, inactive)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if inactive.calls != 0 {
		t.Fatalf("inactive extension was consulted")
	}
	got, err := reg.Manager(domain.KindJob)
	if err != nil || got != override {
		t.Fatalf("job manager not overridden: %v", err)
	}
	if _, err := reg.Manager("report"); err != nil {
		t.Fatalf("extension kind missing: %v", err)
	}
	_, err = reg.Manager("ghost")
	var uk domain.UnknownKindError
	if !errors.As(err, &uk) || !errors.Is(err, domain.ErrUnknownKind) || uk.Kind != "ghost" {
		t.Fatalf("err = %v, want UnknownKindError", err)
	}
	if names := reg.Extensions(); !reflect.DeepEqual(names, []string{"archive"}) {
		t.Fatalf("extensions = %v", names)
	}
	kinds := reg.Kinds()
	if len(kinds) != len(domain.BuiltinKinds())+1 {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := 1; i < len(kinds); i++ {
		if kinds[i-1] > kinds[i] {
			t.Fatalf("kinds not sorted: %v", kinds)
		}
	}

	failing := &stubExtension{name: "bad", active: true, err: errors.New("nope")}
	if _, err := BuildRegistry(context.Background(), factories, failing); err == nil || !strings.Contains(err.Error(), "extension bad") {
		t.Fatalf("err = %v", err)
	}
}

func TestServiceBuildsRegistryOnce(t *testing.T) {
	store := memory.NewStore()
	builds := 0
	factories := RepositoryFactories(func(kind domain.Kind) domain.Repository { return store.Repository(kind) })
	inner := factories[domain.KindDataNode]
	factories[domain.KindDataNode] = func(ctx context.Context, built Managers) (domain.Repository, error) {
		builds++
		return inner(ctx, built)
	}
	ext := &stubExtension{name: "x", active: true}
	svc := NewService(factories, WithExtensions(ext))
	defer func() { _ = svc.Close() }()
	for i := 0; i < 3; i++ {
		if _, err := svc.Registry(context.Background()); err != nil {
			t.Fatalf("registry: %v", err)
		}
		if _, err := svc.Manager(domain.KindTask); err != nil {
			t.Fatalf("manager: %v", err)
		}
	}
	if builds != 1 || ext.calls != 1 {
		t.Fatalf("builds = %d, extension calls = %d, want 1 and 1", builds, ext.calls)
	}
}
