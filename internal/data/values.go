// Package data stores the values behind data nodes. in_memory nodes keep
// their value in process; json nodes serialize it to the blob store under
// values/<data node id>.json.
package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"flowcore/internal/blob"
	"flowcore/pkg/domain"
)

// ErrNotWritten is returned when a data node has no value yet.
var ErrNotWritten = errors.New("data node has not been written")

const valuePrefix = "values/"

// Store reads and writes data node values.
type Store struct {
	mu    sync.RWMutex
	mem   map[string]any
	blobs blob.Store
}

// New returns a value store. blobs may be nil when no json nodes are used.
func New(blobs blob.Store) *Store {
	return &Store{mem: make(map[string]any), blobs: blobs}
}

// Key returns the blob key of a json data node value.
func Key(id string) string { return valuePrefix + id + ".json" }

// Read returns the current value of dn. json values decode into the
// generic encoding/json shapes (float64, map[string]any, []any).
func (s *Store) Read(ctx context.Context, dn *domain.DataNode) (any, error) {
	switch dn.Storage {
	case domain.StorageInMemory, "":
		s.mu.RLock()
		v, ok := s.mem[dn.ID]
		s.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%s: %w", dn.ID, ErrNotWritten)
		}
		return v, nil
	case domain.StorageJSON:
		if s.blobs == nil {
			return nil, fmt.Errorf("%s: no blob store configured for json storage", dn.ID)
		}
		_, rc, err := s.blobs.Get(ctx, Key(dn.ID))
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", dn.ID, ErrNotWritten)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dn.ID, err)
		}
		defer func() { _ = rc.Close() }()
		var v any
		if err := json.NewDecoder(rc).Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", dn.ID, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%s: unsupported storage type %q", dn.ID, dn.Storage)
	}
}

// Write replaces the value of dn.
func (s *Store) Write(ctx context.Context, dn *domain.DataNode, v any) error {
	switch dn.Storage {
	case domain.StorageInMemory, "":
		s.mu.Lock()
		s.mem[dn.ID] = v
		s.mu.Unlock()
		return nil
	case domain.StorageJSON:
		if s.blobs == nil {
			return fmt.Errorf("%s: no blob store configured for json storage", dn.ID)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", dn.ID, err)
		}
		if _, err := s.blobs.Put(ctx, Key(dn.ID), bytes.NewReader(raw), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"data-node": dn.ID},
		}); err != nil {
			return fmt.Errorf("write %s: %w", dn.ID, err)
		}
		return nil
	default:
		return fmt.Errorf("%s: unsupported storage type %q", dn.ID, dn.Storage)
	}
}
