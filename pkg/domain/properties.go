package domain

import "sort"

// Properties is the free-form attribute container carried by most entities.
// Pending buffers hold in-context changes that have not been committed yet;
// owner points back at the local handle whose pending state was last merged
// into this container and is used only to route later writes.
type Properties struct {
	Data map[string]any `json:"data"`

	pendingChanges   map[string]any
	pendingDeletions map[string]struct{}
	owner            Entity
}

// NewProperties returns a container seeded with a copy of data.
func NewProperties(data map[string]any) *Properties {
	p := &Properties{Data: make(map[string]any, len(data))}
	for k, v := range data {
		p.Data[k] = v
	}
	return p
}

// Get returns the value stored under key.
func (p *Properties) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.Data[key]
	return v, ok
}

// Keys returns the sorted property names.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p.Data))
	for k := range p.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Put stores value directly, without pending bookkeeping.
func (p *Properties) Put(key string, value any) {
	if p.Data == nil {
		p.Data = make(map[string]any)
	}
	p.Data[key] = value
}

// Remove deletes key directly, without pending bookkeeping.
func (p *Properties) Remove(key string) {
	delete(p.Data, key)
}

// StageChange records an uncommitted change and applies it locally.
func (p *Properties) StageChange(key string, value any) {
	p.Put(key, value)
	if p.pendingChanges == nil {
		p.pendingChanges = make(map[string]any)
	}
	p.pendingChanges[key] = value
	delete(p.pendingDeletions, key)
}

// StageDeletion records an uncommitted deletion and applies it locally.
func (p *Properties) StageDeletion(key string) {
	p.Remove(key)
	if p.pendingDeletions == nil {
		p.pendingDeletions = make(map[string]struct{})
	}
	p.pendingDeletions[key] = struct{}{}
	delete(p.pendingChanges, key)
}

// PendingChanges returns a copy of the uncommitted changes.
func (p *Properties) PendingChanges() map[string]any {
	if p == nil || len(p.pendingChanges) == 0 {
		return nil
	}
	out := make(map[string]any, len(p.pendingChanges))
	for k, v := range p.pendingChanges {
		out[k] = v
	}
	return out
}

// PendingDeletions returns the sorted uncommitted deletions.
func (p *Properties) PendingDeletions() []string {
	if p == nil || len(p.pendingDeletions) == 0 {
		return nil
	}
	out := make([]string, 0, len(p.pendingDeletions))
	for k := range p.pendingDeletions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasPending reports whether any change or deletion is uncommitted.
func (p *Properties) HasPending() bool {
	return p != nil && (len(p.pendingChanges) > 0 || len(p.pendingDeletions) > 0)
}

// MergePending layers the pending buffers of src on top of p. Only
// non-empty buffers are copied so existing state is never cleared.
func (p *Properties) MergePending(src *Properties) {
	if src == nil {
		return
	}
	if changes := src.PendingChanges(); len(changes) > 0 {
		p.pendingChanges = changes
	}
	if len(src.pendingDeletions) > 0 {
		p.pendingDeletions = make(map[string]struct{}, len(src.pendingDeletions))
		for k := range src.pendingDeletions {
			p.pendingDeletions[k] = struct{}{}
		}
	}
}

// ApplyPending writes pending changes then pending deletions into Data.
func (p *Properties) ApplyPending() {
	for k, v := range p.pendingChanges {
		p.Put(k, v)
	}
	for k := range p.pendingDeletions {
		p.Remove(k)
	}
}

// ClearPending drops both pending buffers and the owner reference.
func (p *Properties) ClearPending() {
	if p == nil {
		return
	}
	p.pendingChanges = nil
	p.pendingDeletions = nil
	p.owner = nil
}

// Owner returns the local handle last merged into this container.
func (p *Properties) Owner() Entity {
	if p == nil {
		return nil
	}
	return p.owner
}

// SetOwner records the routing back reference.
func (p *Properties) SetOwner(e Entity) {
	p.owner = e
}

// Clone deep-copies data and pending buffers. The owner is not copied.
func (p *Properties) Clone() *Properties {
	if p == nil {
		return nil
	}
	cp := NewProperties(p.Data)
	if len(p.pendingChanges) > 0 {
		cp.pendingChanges = p.PendingChanges()
	}
	if len(p.pendingDeletions) > 0 {
		cp.pendingDeletions = make(map[string]struct{}, len(p.pendingDeletions))
		for k := range p.pendingDeletions {
			cp.pendingDeletions[k] = struct{}{}
		}
	}
	return cp
}

// EnsureProps returns the property container of e, allocating it when the
// kind carries one and it is still nil. Kinds without properties return nil.
func EnsureProps(e Entity) *Properties {
	switch v := e.(type) {
	case *Scenario:
		if v.Properties == nil {
			v.Properties = NewProperties(nil)
		}
		return v.Properties
	case *Sequence:
		if v.Properties == nil {
			v.Properties = NewProperties(nil)
		}
		return v.Properties
	case *Task:
		if v.Properties == nil {
			v.Properties = NewProperties(nil)
		}
		return v.Properties
	case *DataNode:
		if v.Properties == nil {
			v.Properties = NewProperties(nil)
		}
		return v.Properties
	case *Cycle:
		if v.Properties == nil {
			v.Properties = NewProperties(nil)
		}
		return v.Properties
	case *Submission:
		if v.Properties == nil {
			v.Properties = NewProperties(nil)
		}
		return v.Properties
	default:
		if e == nil {
			return nil
		}
		return e.Props()
	}
}
