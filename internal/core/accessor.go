package core

import (
	"context"
	"fmt"

	"flowcore/pkg/domain"
)

// Attribute describes one persisted field of entities of type E.
type Attribute[E domain.Entity, V any] struct {
	Kind domain.Kind
	Name string
	Get  func(E) V
	Set  func(E, V)
}

// Fresh returns the reloaded form of handle. Inside an open edit context
// the handle's own buffered writes and staged properties are replayed onto
// the result so callers read what they wrote.
func Fresh[E domain.Entity](ctx context.Context, r *Reloader, handle E) (E, error) {
	var zero E
	kind := handle.EntityKind()
	latest, err := r.Reload(ctx, kind, handle)
	if err != nil {
		return zero, err
	}
	// A reload that hands back the handle itself already carries its own
	// writes; replaying them would apply each one twice.
	if domain.InContext(handle) && latest != domain.Entity(handle) {
		for _, w := range handle.EditState().Pending() {
			if w.Apply != nil {
				w.Apply(latest)
			}
		}
		if p := latest.Props(); p != nil {
			p.ApplyPending()
		}
	}
	typed, ok := latest.(E)
	if !ok {
		return zero, fmt.Errorf("reload %s %s: %w: got %T", kind, handle.EntityID(), domain.ErrKindMismatch, latest)
	}
	return typed, nil
}

// Read returns attr from the latest state of handle.
func Read[E domain.Entity, V any](ctx context.Context, r *Reloader, handle E, attr Attribute[E, V]) (V, error) {
	var zero V
	if err := checkKind(handle, attr.Kind); err != nil {
		return zero, err
	}
	latest, err := Fresh(ctx, r, handle)
	if err != nil {
		return zero, err
	}
	return attr.Get(latest), nil
}

// Write sets attr to value. The local handle is updated immediately.
// Outside an edit context the canonical entity is reloaded, updated,
// persisted and an UPDATE event is published; inside one the write is
// buffered until the outermost Commit.
func Write[E domain.Entity, V any](ctx context.Context, r *Reloader, handle E, attr Attribute[E, V], value V) error {
	if err := checkKind(handle, attr.Kind); err != nil {
		return err
	}
	return Mutate(ctx, r, handle, attr.Name, value, func(e E) { attr.Set(e, value) })
}

// Mutate applies fn under the same contract as Write. name and value
// describe the change in the published event. fn runs on the local handle
// and, when the reload yields a separate canonical copy, once more on that
// copy, so it must be deterministic.
func Mutate[E domain.Entity](ctx context.Context, r *Reloader, handle E, name string, value any, fn func(E)) error {
	ev := domain.NewEvent(handle, domain.OperationUpdate, name, value, r.now())
	fn(handle)
	w := domain.PendingWrite{Event: ev, Apply: func(e domain.Entity) {
		if typed, ok := e.(E); ok {
			fn(typed)
		}
	}}
	if domain.InContext(handle) {
		handle.EditState().Buffer(w)
		return nil
	}
	return r.commit(ctx, handle.EntityKind(), handle, []domain.PendingWrite{w}, nil)
}

// SetProperty stores key in the handle's property container.
func SetProperty(ctx context.Context, r *Reloader, handle domain.Entity, key string, value any) error {
	props := domain.EnsureProps(handle)
	if props == nil {
		return fmt.Errorf("%s entities carry no properties", handle.EntityKind())
	}
	ev := domain.NewEvent(handle, domain.OperationUpdate, propertyAttribute, value, r.now())
	ev.Metadata = map[string]any{"key": key}
	if domain.InContext(handle) {
		props.StageChange(key, value)
		handle.EditState().Buffer(domain.PendingWrite{Event: ev})
		return nil
	}
	props.Put(key, value)
	return r.commit(ctx, handle.EntityKind(), handle, []domain.PendingWrite{{Event: ev, Apply: func(e domain.Entity) {
		domain.EnsureProps(e).Put(key, value)
	}}}, nil)
}

// DeleteProperty removes key from the handle's property container.
func DeleteProperty(ctx context.Context, r *Reloader, handle domain.Entity, key string) error {
	props := domain.EnsureProps(handle)
	if props == nil {
		return fmt.Errorf("%s entities carry no properties", handle.EntityKind())
	}
	ev := domain.NewEvent(handle, domain.OperationUpdate, propertyAttribute, nil, r.now())
	ev.Metadata = map[string]any{"key": key, "deleted": true}
	if domain.InContext(handle) {
		props.StageDeletion(key)
		handle.EditState().Buffer(domain.PendingWrite{Event: ev})
		return nil
	}
	props.Remove(key)
	return r.commit(ctx, handle.EntityKind(), handle, []domain.PendingWrite{{Event: ev, Apply: func(e domain.Entity) {
		domain.EnsureProps(e).Remove(key)
	}}}, nil)
}

const propertyAttribute = "properties"

func checkKind(e domain.Entity, kind domain.Kind) error {
	if kind != "" && e.EntityKind() != kind {
		return fmt.Errorf("%w: attribute of %s used on %s %s", domain.ErrKindMismatch, kind, e.EntityKind(), e.EntityID())
	}
	return nil
}
