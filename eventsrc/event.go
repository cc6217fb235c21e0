package eventsrc

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AggregateKind names a family of aggregates sharing one event registry (e.g. "application", "offer").
type AggregateKind string

// EventType is the discriminator of an event. The set of types is closed per aggregate kind.
type EventType string

// Event is the interface that all domain events must implement.
type Event interface {
	EventID() uuid.UUID
	EventType() EventType
	// AggregateID is the partition the event belongs to.
	AggregateID() string
	// TargetName is the id of the child entity the event targets, empty for aggregate level events.
	TargetName() string
	// SequenceID is assigned by the event store and strictly increases within a partition.
	SequenceID() int64
}

// sequencer is implemented by *BaseEvent so the registry can stamp store assigned fields onto decoded events.
type sequencer interface {
	setStoreFields(aggregateID string, seq int64)
}

// BaseEvent provides a common implementation for the Event interface.
// Domain events embed this struct and add their payload.
type BaseEvent struct {
	ID          uuid.UUID `json:"id"`
	AggID       string    `json:"aggregate_id"`
	Name        string    `json:"name,omitempty"`
	Seq         int64     `json:"event_sequence_id,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedTime time.Time `json:"created_time,omitempty"`
}

func (b BaseEvent) EventID() uuid.UUID  { return b.ID }
func (b BaseEvent) AggregateID() string { return b.AggID }
func (b BaseEvent) TargetName() string  { return b.Name }
func (b BaseEvent) SequenceID() int64   { return b.Seq }

func (b *BaseEvent) setStoreFields(aggregateID string, seq int64) {
	b.AggID = aggregateID
	b.Seq = seq
}

// NewBaseEvent returns a BaseEvent with a fresh id. The sequence id is left for the event store to assign.
func NewBaseEvent(aggregateID, name, createdBy string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New(),
		AggID:       aggregateID,
		Name:        name,
		CreatedBy:   createdBy,
		CreatedTime: time.Now().UTC(),
	}
}

// Record is the stored form of an event. It is what event stores return and what the
// outbox relay publishes on the message bus.
type Record struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateKind AggregateKind   `json:"aggregate_kind"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	SequenceID    int64           `json:"event_sequence_id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}
