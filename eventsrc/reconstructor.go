package eventsrc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Codec converts aggregate state to and from its serialized form.
type Codec[S any] interface {
	Marshal(state *S) ([]byte, error)
	Unmarshal(data []byte) (*S, error)
}

// ReconstructorOption configures a Reconstructor.
type ReconstructorOption func(*reconstructorConfig)

type reconstructorConfig struct {
	snapshotEvery int
	types         []EventType
}

// WithSnapshotEvery makes the reconstructor write a snapshot whenever a fold
// applied at least n events on top of the previous snapshot. n <= 0 disables it.
func WithSnapshotEvery(n int) ReconstructorOption {
	return func(c *reconstructorConfig) {
		c.snapshotEvery = n
	}
}

// WithEventFilter restricts the events read from the store to the given types.
// Filtered reconstructions never write snapshots.
func WithEventFilter(types ...EventType) ReconstructorOption {
	return func(c *reconstructorConfig) {
		c.types = types
	}
}

// Reconstructor loads aggregates of one kind from the event and snapshot stores.
type Reconstructor[S any] struct {
	events    EventStore
	snapshots SnapshotStore
	folder    *Folder[S]
	codec     Codec[S]
	cfg       reconstructorConfig
}

// NewReconstructor creates a reconstructor. snapshots may be nil, in which case
// every reconstruction replays the full event log.
func NewReconstructor[S any](
	events EventStore,
	snapshots SnapshotStore,
	folder *Folder[S],
	codec Codec[S],
	opts ...ReconstructorOption,
) *Reconstructor[S] {
	r := &Reconstructor[S]{
		events:    events,
		snapshots: snapshots,
		folder:    folder,
		codec:     codec,
	}
	for _, opt := range opts {
		opt(&r.cfg)
	}
	return r
}

// Kind returns the aggregate kind the reconstructor loads.
func (r *Reconstructor[S]) Kind() AggregateKind { return r.folder.Registry().Kind() }

// Reconstruct returns the current state of the aggregate, or nil when it was
// deleted or never created.
func (r *Reconstructor[S]) Reconstruct(ctx context.Context, aggregateID string) (*S, error) {
	state, _, err := r.reconstruct(ctx, aggregateID)
	return state, err
}

// ReconstructJSON returns the serialized current state, or nil when the aggregate is absent.
func (r *Reconstructor[S]) ReconstructJSON(ctx context.Context, aggregateID string) (json.RawMessage, error) {
	state, _, err := r.reconstruct(ctx, aggregateID)
	if err != nil || state == nil {
		return nil, err
	}
	data, err := r.codec.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize aggregate %s: %w", aggregateID, err)
	}
	return data, nil
}

// ReconstructJSONAt is like ReconstructJSON but also returns the sequence id the state reflects.
func (r *Reconstructor[S]) ReconstructJSONAt(ctx context.Context, aggregateID string) (json.RawMessage, int64, error) {
	state, seq, err := r.reconstruct(ctx, aggregateID)
	if err != nil || state == nil {
		return nil, seq, err
	}
	data, err := r.codec.Marshal(state)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to serialize aggregate %s: %w", aggregateID, err)
	}
	return data, seq, nil
}

// ReconstructAt is like Reconstruct but also returns the sequence id the
// state reflects. It is 0 for an aggregate with no events.
func (r *Reconstructor[S]) ReconstructAt(ctx context.Context, aggregateID string) (*S, int64, error) {
	return r.reconstruct(ctx, aggregateID)
}

func (r *Reconstructor[S]) reconstruct(ctx context.Context, aggregateID string) (*S, int64, error) {
	kind := r.Kind()

	// 1. Load the latest snapshot, if the store has one.
	var snapshot *Snapshot[S]
	if r.snapshots != nil && len(r.cfg.types) == 0 {
		rec, ok, err := r.snapshots.LatestSnapshot(ctx, kind, aggregateID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load snapshot for %s %s: %w", kind, aggregateID, err)
		}
		if ok {
			state, err := r.codec.Unmarshal(rec.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to decode snapshot, cannot reconstruct aggregate",
					"aggregateKind", kind, "aggregateID", aggregateID, "snapshotSeq", rec.SequenceID, "error", err)
				return nil, 0, err
			}
			snapshot = &Snapshot[S]{AggregateID: aggregateID, State: state, SequenceID: rec.SequenceID}
		}
	}

	// 2. Load the events after the snapshot.
	var after int64
	if snapshot != nil {
		after = snapshot.SequenceID
	}
	recs, err := r.events.ListEvents(ctx, EventQuery{
		Kind:            kind,
		AggregateID:     aggregateID,
		AfterSequenceID: after,
		Types:           r.cfg.types,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load events for %s %s: %w", kind, aggregateID, err)
	}
	for _, rec := range recs {
		if rec.AggregateKind != kind || rec.AggregateID != aggregateID {
			err := &FoldError{
				Kind:        KindPartitionMismatch,
				AggregateID: aggregateID,
				EventType:   rec.EventType,
				SequenceID:  rec.SequenceID,
				Msg:         fmt.Sprintf("store returned an event of %s %q", rec.AggregateKind, rec.AggregateID),
			}
			r.logInconsistency(ctx, aggregateID, err)
			return nil, 0, err
		}
	}
	events, err := r.folder.Registry().DecodeAll(recs)
	if err != nil {
		r.logInconsistency(ctx, aggregateID, err)
		return nil, 0, err
	}

	// 3. Fold.
	state, err := r.folder.Fold(snapshot, events)
	if err != nil {
		r.logInconsistency(ctx, aggregateID, err)
		return nil, 0, err
	}

	lastSeq := after
	if n := len(events); n > 0 {
		lastSeq = events[n-1].SequenceID()
	}
	r.maybeSnapshot(ctx, aggregateID, state, lastSeq, len(events))
	return state, lastSeq, nil
}

func (r *Reconstructor[S]) maybeSnapshot(ctx context.Context, aggregateID string, state *S, seq int64, applied int) {
	if state == nil || r.cfg.snapshotEvery <= 0 || applied < r.cfg.snapshotEvery || len(r.cfg.types) > 0 {
		return
	}
	writer, ok := r.snapshots.(SnapshotWriter)
	if !ok {
		return
	}
	body, err := r.codec.Marshal(state)
	if err == nil {
		err = writer.SaveSnapshot(ctx, SnapshotRecord{
			AggregateKind: r.Kind(),
			AggregateID:   aggregateID,
			SequenceID:    seq,
			Body:          body,
		})
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to save snapshot", "aggregateKind", r.Kind(), "aggregateID", aggregateID, "error", err)
		return
	}
	slog.InfoContext(ctx, "Snapshot saved successfully", "aggregateKind", r.Kind(), "aggregateID", aggregateID, "seq", seq)
}

func (r *Reconstructor[S]) logInconsistency(ctx context.Context, aggregateID string, err error) {
	slog.ErrorContext(ctx, "Event log inconsistency, aggregate cannot be reconstructed",
		"aggregateKind", r.Kind(), "aggregateID", aggregateID, "kind", KindOf(err).String(), "error", err)
}
