package core

import (
	"context"
	"errors"

	"flowcore/pkg/domain"
)

// ErrNoEditContext is returned by Commit on a handle without an open context.
var ErrNoEditContext = errors.New("no open edit context")

// Begin opens an edit context on handle, or nests one level deeper.
func Begin(handle domain.Entity) {
	handle.EditState().Enter()
}

// Commit closes one level of the handle's edit context. Closing the
// outermost level flushes every buffered write to the canonical entity in
// one Set and publishes the buffered events in recording order. The
// context is closed even when the flush fails.
func Commit(ctx context.Context, r *Reloader, handle domain.Entity) error {
	return commitIf(ctx, r, handle, nil)
}

func commitIf(ctx context.Context, r *Reloader, handle domain.Entity, guard func(domain.Entity) error) error {
	st := handle.EditState()
	switch st.Depth() {
	case 0:
		return ErrNoEditContext
	case 1:
	default:
		st.Leave()
		return nil
	}
	writes := st.Pending()
	props := handle.Props()
	defer func() {
		st.Reset()
		st.Leave()
		if props != nil {
			props.ClearPending()
		}
	}()
	if guard == nil && len(writes) == 0 && !props.HasPending() {
		return nil
	}
	return r.commit(ctx, handle.EntityKind(), handle, writes, guard)
}

// Discard closes one level of the edit context and drops every buffered
// write of the whole transaction. Local handle fields already changed by
// the dropped writes are not rolled back.
func Discard(handle domain.Entity) {
	st := handle.EditState()
	st.Reset()
	st.Leave()
	if p := handle.Props(); p != nil {
		p.ClearPending()
	}
}

// Edit runs fn inside an edit context on handle. The context commits when
// fn returns nil and is discarded when fn fails or panics.
func Edit(ctx context.Context, r *Reloader, handle domain.Entity, fn func() error) error {
	return editIf(ctx, r, handle, nil, fn)
}

func editIf(ctx context.Context, r *Reloader, handle domain.Entity, guard func(domain.Entity) error, fn func() error) error {
	Begin(handle)
	committed := false
	defer func() {
		if !committed {
			Discard(handle)
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	committed = true
	return commitIf(ctx, r, handle, guard)
}
