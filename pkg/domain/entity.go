package domain

// Entity is implemented by every record managed through a Repository.
type Entity interface {
	EntityID() string
	EntityKind() Kind
	// Props returns the property container, or nil for kinds without one.
	Props() *Properties
	// EditState returns the handle-local edit context state.
	EditState() *EditState
	// CloneEntity returns a deep copy that does not share edit state.
	CloneEntity() Entity
}

// Base contains the identifier and edit state common to all entities.
type Base struct {
	ID   string `json:"id"`
	edit *EditState
}

// EntityID implements Entity.
func (b *Base) EntityID() string { return b.ID }

// EditState returns the handle's edit context, allocating it on first use.
func (b *Base) EditState() *EditState {
	if b.edit == nil {
		b.edit = &EditState{}
	}
	return b.edit
}

func (b Base) clone() Base {
	return Base{ID: b.ID}
}

// PendingWrite is an attribute mutation buffered inside an edit context.
// Apply is nil for property writes, which travel through the property
// container's pending buffers instead.
type PendingWrite struct {
	Event Event
	Apply func(Entity)
}

// EditState tracks an open edit context on a single local handle. It is
// never persisted and never copied by CloneEntity.
type EditState struct {
	depth   int
	pending []PendingWrite
}

// InContext reports whether an edit context is open on the handle.
func (s *EditState) InContext() bool {
	return s != nil && s.depth > 0
}

// Enter opens (or nests) an edit context.
func (s *EditState) Enter() {
	s.depth++
}

// Leave closes one nesting level and reports whether the outermost level
// was closed.
func (s *EditState) Leave() bool {
	if s.depth == 0 {
		return false
	}
	s.depth--
	return s.depth == 0
}

// Depth returns the current nesting depth.
func (s *EditState) Depth() int {
	if s == nil {
		return 0
	}
	return s.depth
}

// Buffer appends a pending write.
func (s *EditState) Buffer(w PendingWrite) {
	s.pending = append(s.pending, w)
}

// Pending returns a copy of the buffered writes in recording order.
func (s *EditState) Pending() []PendingWrite {
	if s == nil || len(s.pending) == 0 {
		return nil
	}
	out := make([]PendingWrite, len(s.pending))
	copy(out, s.pending)
	return out
}

// Reset drops every buffered write.
func (s *EditState) Reset() {
	s.pending = nil
}

// InContext reports whether e has an open edit context.
func InContext(e Entity) bool {
	if e == nil {
		return false
	}
	return e.EditState().InContext()
}
