package eventsrc

// Snapshot is a materialized aggregate state and the sequence id it was computed through.
type Snapshot[S any] struct {
	AggregateID string
	State       *S
	SequenceID  int64
}

// Applier holds the event-type specific mutation rules of one aggregate kind.
//
// Create builds a new aggregate from a creation event. Apply mutates state in
// place for every other event; for a terminal event it records the final
// status and the folder then drops the state. Clone returns a deep copy.
type Applier[S any] interface {
	Create(evt Event) (*S, error)
	Apply(state *S, evt Event) error
	Clone(state *S) *S
}

// Folder replays ordered events on top of an optional snapshot.
//
// A Folder holds no mutable state, so one instance may fold any number of
// aggregates concurrently.
type Folder[S any] struct {
	registry *Registry
	applier  Applier[S]
}

// NewFolder creates a folder for the aggregate kind described by registry.
func NewFolder[S any](registry *Registry, applier Applier[S]) *Folder[S] {
	return &Folder[S]{registry: registry, applier: applier}
}

// Registry returns the registry the folder validates events against.
func (f *Folder[S]) Registry() *Registry { return f.registry }

// Fold applies events in order and returns the resulting aggregate, or nil
// when the aggregate was deleted or never created. The snapshot is never
// modified. The first violation aborts the fold and no partial state is returned.
func (f *Folder[S]) Fold(snapshot *Snapshot[S], events []Event) (*S, error) {
	var (
		state       *S
		lastSeq     int64
		aggregateID string
	)
	if snapshot != nil {
		if snapshot.State == nil {
			return nil, &FoldError{
				Kind:        KindMalformedSnapshot,
				AggregateID: snapshot.AggregateID,
				SequenceID:  snapshot.SequenceID,
				Msg:         "snapshot has no state",
			}
		}
		state = f.applier.Clone(snapshot.State)
		lastSeq = snapshot.SequenceID
		aggregateID = snapshot.AggregateID
	}

	terminated := false
	for i, evt := range events {
		eventType := evt.EventType()
		if !f.registry.Known(eventType) {
			return nil, eventError(KindUnknownEventType, evt, "event type is not registered for %s", f.registry.Kind())
		}

		if aggregateID == "" {
			aggregateID = evt.AggregateID()
		} else if evt.AggregateID() != "" && evt.AggregateID() != aggregateID {
			return nil, eventError(KindPartitionMismatch, evt, "event belongs to %q, folding %q", evt.AggregateID(), aggregateID)
		}

		seq := evt.SequenceID()
		if (i > 0 || snapshot != nil) && seq <= lastSeq {
			return nil, eventError(KindOutOfOrderEvent, evt, "sequence id %d does not follow %d", seq, lastSeq)
		}
		lastSeq = seq

		if terminated {
			return nil, eventError(KindPostTerminalEvent, evt, "event follows a terminal event")
		}

		if f.registry.IsCreationEvent(eventType) {
			if state != nil {
				return nil, eventError(KindAggregateExists, evt, "creation event for an existing aggregate")
			}
			created, err := f.applier.Create(evt)
			if err != nil {
				return nil, withEvent(err, evt)
			}
			state = created
			continue
		}

		if state == nil {
			return nil, eventError(KindMissingSnapshot, evt, "no snapshot and no prior creation event")
		}
		if err := f.applier.Apply(state, evt); err != nil {
			return nil, withEvent(err, evt)
		}
		if f.registry.IsTerminalEvent(eventType) {
			state = nil
			terminated = true
		}
	}
	return state, nil
}

// withEvent fills in the event coordinates of a FoldError returned by an applier.
func withEvent(err error, evt Event) error {
	fe, ok := err.(*FoldError)
	if !ok {
		return &FoldError{
			Kind:        KindMalformedEvent,
			AggregateID: evt.AggregateID(),
			EventType:   evt.EventType(),
			SequenceID:  evt.SequenceID(),
			Err:         err,
		}
	}
	if fe.AggregateID == "" {
		fe.AggregateID = evt.AggregateID()
	}
	if fe.EventType == "" {
		fe.EventType = evt.EventType()
	}
	if fe.SequenceID == 0 {
		fe.SequenceID = evt.SequenceID()
	}
	return fe
}
