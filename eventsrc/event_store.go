package eventsrc

import (
	"context"
)

// EventQuery selects the events of one aggregate after a sequence id.
type EventQuery struct {
	Kind            AggregateKind
	AggregateID     string
	AfterSequenceID int64
	// Types optionally restricts the result to some event types.
	Types []EventType
}

// EventStore lists stored events. Implementations return records ascending by sequence id.
type EventStore interface {
	ListEvents(ctx context.Context, query EventQuery) ([]Record, error)
}

// EventAppender persists new events. The store assigns sequence ids and returns
// the records as stored.
type EventAppender interface {
	Append(ctx context.Context, records []Record) ([]Record, error)
}

// SnapshotRecord is a serialized aggregate state and the sequence id it reflects.
type SnapshotRecord struct {
	AggregateKind AggregateKind
	AggregateID   string
	SequenceID    int64
	Body          []byte
}

// SnapshotStore returns the latest snapshot of an aggregate. ok is false when
// there is none, which is not an error.
type SnapshotStore interface {
	LatestSnapshot(ctx context.Context, kind AggregateKind, aggregateID string) (rec SnapshotRecord, ok bool, err error)
}

// SnapshotWriter persists snapshots.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, rec SnapshotRecord) error
}
