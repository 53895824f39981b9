package core

import (
	"context"
	"fmt"
	"sort"

	"flowcore/pkg/domain"
)

// Managers maps kinds to the repositories built so far.
type Managers map[domain.Kind]domain.Repository

func (m Managers) clone() Managers {
	out := make(Managers, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ManagerFactory builds the repository of one kind. built holds every
// manager constructed earlier in the build order.
type ManagerFactory func(ctx context.Context, built Managers) (domain.Repository, error)

// Factories supplies one factory per built-in kind.
type Factories map[domain.Kind]ManagerFactory

// Extension contributes managers when its capability is active.
// Contributions override or add kinds.
type Extension interface {
	Name() string
	Active() bool
	Managers(ctx context.Context, built Managers) (map[domain.Kind]domain.Repository, error)
}

// buildOrder lists kinds so that every kind follows its dependencies:
// task needs data, job needs task, submission needs job, and scenario and
// sequence need task, data and cycle.
var buildOrder = []domain.Kind{
	domain.KindDataNode,
	domain.KindCycle,
	domain.KindTask,
	domain.KindJob,
	domain.KindSubmission,
	domain.KindScenario,
	domain.KindSequence,
}

// Registry resolves the manager of each kind.
type Registry struct {
	managers   Managers
	extensions []string
}

// BuildRegistry constructs every built-in manager in dependency order, then
// lets active extensions contribute.
func BuildRegistry(ctx context.Context, factories Factories, extensions ...Extension) (*Registry, error) {
	built := make(Managers, len(buildOrder))
	for _, kind := range buildOrder {
		factory, ok := factories[kind]
		if !ok || factory == nil {
			return nil, fmt.Errorf("no manager factory for kind %s", kind)
		}
		repo, err := factory(ctx, built.clone())
		if err != nil {
			return nil, fmt.Errorf("build %s manager: %w", kind, err)
		}
		if repo == nil {
			return nil, fmt.Errorf("build %s manager: factory returned nil", kind)
		}
		built[kind] = repo
	}
	reg := &Registry{managers: built}
	for _, ext := range extensions {
		if ext == nil || !ext.Active() {
			continue
		}
		contributed, err := ext.Managers(ctx, built.clone())
		if err != nil {
			return nil, fmt.Errorf("extension %s: %w", ext.Name(), err)
		}
		for kind, repo := range contributed {
			if repo != nil {
				built[kind] = repo
			}
		}
		reg.extensions = append(reg.extensions, ext.Name())
	}
	return reg, nil
}

// Manager returns the repository registered for kind.
func (r *Registry) Manager(kind domain.Kind) (domain.Repository, error) {
	repo, ok := r.managers[kind]
	if !ok {
		return nil, domain.UnknownKindError{Kind: kind}
	}
	return repo, nil
}

// Kinds returns the registered kinds sorted.
func (r *Registry) Kinds() []domain.Kind {
	out := make([]domain.Kind, 0, len(r.managers))
	for k := range r.managers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Extensions returns the names of the extensions that contributed managers.
func (r *Registry) Extensions() []string {
	return append([]string(nil), r.extensions...)
}

// requireBuilt fails unless every dependency kind is already present.
func requireBuilt(built Managers, kind domain.Kind, deps ...domain.Kind) error {
	for _, dep := range deps {
		if _, ok := built[dep]; !ok {
			return fmt.Errorf("%s manager requires %s manager", kind, dep)
		}
	}
	return nil
}

// kindDependencies documents which managers each kind needs at build time.
var kindDependencies = map[domain.Kind][]domain.Kind{
	domain.KindTask:       {domain.KindDataNode},
	domain.KindJob:        {domain.KindTask},
	domain.KindSubmission: {domain.KindJob},
	domain.KindScenario:   {domain.KindTask, domain.KindDataNode, domain.KindCycle},
	domain.KindSequence:   {domain.KindTask, domain.KindDataNode, domain.KindCycle},
}

// RepositoryFactories wraps a per-kind repository constructor into
// Factories that check build-order dependencies.
func RepositoryFactories(open func(kind domain.Kind) domain.Repository) Factories {
	out := make(Factories, len(buildOrder))
	for _, kind := range buildOrder {
		kind := kind
		out[kind] = func(_ context.Context, built Managers) (domain.Repository, error) {
			if err := requireBuilt(built, kind, kindDependencies[kind]...); err != nil {
				return nil, err
			}
			return open(kind), nil
		}
	}
	return out
}
