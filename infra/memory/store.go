// Package memory keeps events and snapshots in process memory.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/0m3kk/lunafold/eventsrc"
)

type partition struct {
	kind eventsrc.AggregateKind
	id   string
}

// Store is an in-memory event and snapshot store. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	events    map[partition][]eventsrc.Record
	seen      map[string]struct{}
	snapshots map[partition]eventsrc.SnapshotRecord
}

func NewStore() *Store {
	return &Store{
		events:    make(map[partition][]eventsrc.Record),
		seen:      make(map[string]struct{}),
		snapshots: make(map[partition]eventsrc.SnapshotRecord),
	}
}

// Append assigns the next sequence ids of each record's partition. A record
// whose event id is already stored fails the whole batch with ErrConcurrency.
func (s *Store) Append(ctx context.Context, records []eventsrc.Record) ([]eventsrc.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if _, ok := s.seen[rec.EventID.String()]; ok {
			return nil, eventsrc.ErrConcurrency{Msg: fmt.Sprintf("event %s already stored", rec.EventID)}
		}
	}

	stored := make([]eventsrc.Record, 0, len(records))
	for _, rec := range records {
		p := partition{kind: rec.AggregateKind, id: rec.AggregateID}
		history := s.events[p]
		rec.SequenceID = 1
		if n := len(history); n > 0 {
			rec.SequenceID = history[n-1].SequenceID + 1
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		s.events[p] = append(history, rec)
		s.seen[rec.EventID.String()] = struct{}{}
		stored = append(stored, rec)
	}
	return stored, nil
}

// AppendRaw stores a record as given, without assigning a sequence id.
// It exists to reproduce corrupt logs.
func (s *Store) AppendRaw(rec eventsrc.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := partition{kind: rec.AggregateKind, id: rec.AggregateID}
	s.events[p] = append(s.events[p], rec)
}

func (s *Store) ListEvents(ctx context.Context, q eventsrc.EventQuery) ([]eventsrc.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []eventsrc.Record
	for _, rec := range s.events[partition{kind: q.Kind, id: q.AggregateID}] {
		if rec.SequenceID <= q.AfterSequenceID {
			continue
		}
		if len(q.Types) > 0 && !slices.Contains(q.Types, rec.EventType) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) LatestSnapshot(ctx context.Context, kind eventsrc.AggregateKind, aggregateID string) (eventsrc.SnapshotRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return eventsrc.SnapshotRecord{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.snapshots[partition{kind: kind, id: aggregateID}]
	return rec, ok, nil
}

// SaveSnapshot keeps the snapshot unless a newer one is already stored.
func (s *Store) SaveSnapshot(ctx context.Context, rec eventsrc.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := partition{kind: rec.AggregateKind, id: rec.AggregateID}
	if cur, ok := s.snapshots[p]; ok && cur.SequenceID >= rec.SequenceID {
		return nil
	}
	rec.Body = slices.Clone(rec.Body)
	s.snapshots[p] = rec
	return nil
}

// DeleteSnapshot drops the snapshot of an aggregate.
func (s *Store) DeleteSnapshot(kind eventsrc.AggregateKind, aggregateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, partition{kind: kind, id: aggregateID})
}
