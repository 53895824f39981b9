package core

import (
	"context"
	"fmt"

	"flowcore/internal/config"
	"flowcore/internal/infra/persistence/memory"
	"flowcore/internal/infra/persistence/postgres"
	"flowcore/internal/infra/persistence/sqlite"
	"flowcore/pkg/domain"
)

// OpenRepositories opens the configured backend and returns manager
// factories over it together with a function releasing the backend.
//
//	memory:   process-local buckets, nothing survives a restart
//	sqlite:   embedded file at SQLitePath (default ./flowcore.db)
//	postgres: server at PostgresDSN
func OpenRepositories(ctx context.Context, cfg config.Storage) (Factories, func() error, error) {
	switch cfg.Driver {
	case "", config.StorageMemory:
		store := memory.NewStore()
		return RepositoryFactories(func(kind domain.Kind) domain.Repository {
			return store.Repository(kind)
		}), func() error { return nil }, nil
	case config.StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return RepositoryFactories(func(kind domain.Kind) domain.Repository {
			return store.Repository(kind)
		}), store.Close, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return RepositoryFactories(func(kind domain.Kind) domain.Repository {
			return store.Repository(kind)
		}), store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
