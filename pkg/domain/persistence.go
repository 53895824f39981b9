package domain

import "context"

// Repository is the canonical store for one entity kind. Implementations
// return copies so callers never share state with the store.
type Repository interface {
	Get(ctx context.Context, id string) (Entity, bool, error)
	Set(ctx context.Context, e Entity) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Entity, error)
}
