package eventsrc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Class tells the folder how an event type relates to the aggregate's lifecycle.
type Class int

const (
	// ClassOrdinary events require an existing aggregate.
	ClassOrdinary Class = iota
	// ClassCreation events are valid only when there is no aggregate yet.
	ClassCreation
	// ClassTerminal events end the aggregate's existence.
	ClassTerminal
)

// Factory is a function that creates a new, empty instance of an event.
type Factory func() Event

type registration struct {
	class   Class
	factory Factory
}

// Registry is the closed set of event types of one aggregate kind.
// Types are registered during package initialization and never removed.
type Registry struct {
	kind  AggregateKind
	mu    sync.RWMutex
	types map[EventType]registration
	order []EventType
}

// NewRegistry creates an empty registry for an aggregate kind.
func NewRegistry(kind AggregateKind) *Registry {
	return &Registry{
		kind:  kind,
		types: make(map[EventType]registration),
	}
}

// Kind returns the aggregate kind the registry describes.
func (r *Registry) Kind() AggregateKind { return r.kind }

// Register associates the event type produced by factory with its class.
// This function will panic if an event type is registered more than once.
func (r *Registry) Register(class Class, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	eventType := factory().EventType()
	if _, ok := r.types[eventType]; ok {
		panic(fmt.Sprintf("event type '%s' is already registered for %s", eventType, r.kind))
	}
	r.types[eventType] = registration{class: class, factory: factory}
	r.order = append(r.order, eventType)
}

// ResolvePayloadType instantiates an empty event for the discriminator.
func (r *Registry) ResolvePayloadType(eventType EventType) (Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.types[eventType]
	if !ok {
		return nil, &FoldError{
			Kind:      KindUnknownEventType,
			EventType: eventType,
			Msg:       fmt.Sprintf("event type is not registered for %s", r.kind),
		}
	}
	return reg.factory(), nil
}

// Known reports whether the event type belongs to the registry.
func (r *Registry) Known(eventType EventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[eventType]
	return ok
}

func (r *Registry) IsCreationEvent(eventType EventType) bool {
	return r.classOf(eventType) == ClassCreation
}

func (r *Registry) IsTerminalEvent(eventType EventType) bool {
	return r.classOf(eventType) == ClassTerminal
}

func (r *Registry) classOf(eventType EventType) Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[eventType]
	if !ok {
		return ClassOrdinary
	}
	return reg.class
}

// Types returns the registered event types in registration order.
func (r *Registry) Types() []EventType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EventType, len(r.order))
	copy(out, r.order)
	return out
}

// Decode turns a stored record into its typed event. The sequence id assigned by
// the store wins over the payload's. A payload naming another aggregate than its
// record is a PartitionMismatch.
func (r *Registry) Decode(rec Record) (Event, error) {
	evt, err := r.ResolvePayloadType(rec.EventType)
	if err != nil {
		var fe *FoldError
		if errors.As(err, &fe) {
			fe.AggregateID = rec.AggregateID
			fe.SequenceID = rec.SequenceID
		}
		return nil, err
	}
	if err := json.Unmarshal(rec.Payload, evt); err != nil {
		return nil, &FoldError{
			Kind:        KindMalformedEvent,
			AggregateID: rec.AggregateID,
			EventType:   rec.EventType,
			SequenceID:  rec.SequenceID,
			Msg:         "failed to unmarshal event payload",
			Err:         err,
		}
	}
	if id := evt.AggregateID(); id != "" && id != rec.AggregateID {
		return nil, &FoldError{
			Kind:        KindPartitionMismatch,
			AggregateID: rec.AggregateID,
			EventType:   rec.EventType,
			SequenceID:  rec.SequenceID,
			Msg:         fmt.Sprintf("payload belongs to %q", id),
		}
	}
	if s, ok := evt.(sequencer); ok {
		s.setStoreFields(rec.AggregateID, rec.SequenceID)
	}
	return evt, nil
}

// DecodeAll decodes records in order, stopping at the first failure.
func (r *Registry) DecodeAll(recs []Record) ([]Event, error) {
	events := make([]Event, 0, len(recs))
	for _, rec := range recs {
		evt, err := r.Decode(rec)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

// Encode produces the record to append for an event. The sequence id is left
// as carried by the event; stores assign their own on append.
func (r *Registry) Encode(evt Event) (Record, error) {
	if !r.Known(evt.EventType()) {
		return Record{}, eventError(KindUnknownEventType, evt, "event type is not registered for %s", r.kind)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal event payload for event %s: %w", evt.EventID(), err)
	}
	return Record{
		EventID:       evt.EventID(),
		AggregateKind: r.kind,
		AggregateID:   evt.AggregateID(),
		EventType:     evt.EventType(),
		SequenceID:    evt.SequenceID(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
