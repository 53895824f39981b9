package domain

import "time"

// Operation labels the kind of change an Event reports.
type Operation string

// Event operations.
const (
	OperationCreate     Operation = "CREATE"
	OperationUpdate     Operation = "UPDATE"
	OperationDelete     Operation = "DELETE"
	OperationSubmission Operation = "SUBMISSION"
)

// Event describes a change applied to an entity.
type Event struct {
	EntityID       string         `json:"entity_id"`
	EntityKind     Kind           `json:"entity_kind"`
	Operation      Operation      `json:"operation"`
	AttributeName  string         `json:"attribute_name,omitempty"`
	AttributeValue any            `json:"attribute_value,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewEvent builds an event for e stamped at now.
func NewEvent(e Entity, op Operation, attribute string, value any, now time.Time) Event {
	return Event{
		EntityID:       e.EntityID(),
		EntityKind:     e.EntityKind(),
		Operation:      op,
		AttributeName:  attribute,
		AttributeValue: value,
		Timestamp:      now,
	}
}

// Publisher receives change events. Publish must not block the caller.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(e Event) { f(e) }
