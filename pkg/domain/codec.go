package domain

import (
	"encoding/json"
	"fmt"
)

// NewEntity returns an empty entity of the given built-in kind.
func NewEntity(kind Kind) (Entity, error) {
	switch kind {
	case KindScenario:
		return &Scenario{}, nil
	case KindSequence:
		return &Sequence{}, nil
	case KindTask:
		return &Task{}, nil
	case KindJob:
		return &Job{}, nil
	case KindDataNode:
		return &DataNode{}, nil
	case KindCycle:
		return &Cycle{}, nil
	case KindSubmission:
		return &Submission{}, nil
	default:
		return nil, UnknownKindError{Kind: kind}
	}
}

// EncodeEntity serializes e as JSON. Pending property buffers and edit
// state are not part of the encoding.
func EncodeEntity(e Entity) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", e.EntityKind(), e.EntityID(), err)
	}
	return raw, nil
}

// DecodeEntity restores an entity of kind from its JSON encoding.
func DecodeEntity(kind Kind, raw []byte) (Entity, error) {
	e, err := NewEntity(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return e, nil
}
