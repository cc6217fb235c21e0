package cqrs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/0m3kk/lunafold/eventsrc"
)

// AggregateSource reconstructs the serialized state of one aggregate kind.
// *eventsrc.Reconstructor implements it.
type AggregateSource interface {
	Kind() eventsrc.AggregateKind
	ReconstructJSONAt(ctx context.Context, aggregateID string) (json.RawMessage, int64, error)
}

// AggregateCache holds the latest serialized state of aggregates.
type AggregateCache interface {
	// Put stores body as the state at seq unless a later state is cached.
	Put(ctx context.Context, kind eventsrc.AggregateKind, aggregateID string, seq int64, body []byte) error
	// Evict drops the state and remembers seq as the version of the deleted aggregate.
	Evict(ctx context.Context, kind eventsrc.AggregateKind, aggregateID string, seq int64) error
}

// CacheRefresher is a ProjectionHandler that rebuilds the cached state of the
// aggregate a record belongs to.
type CacheRefresher struct {
	cache   AggregateCache
	sources map[eventsrc.AggregateKind]AggregateSource
}

// NewCacheRefresher creates a refresher for the kinds of the given sources.
func NewCacheRefresher(cache AggregateCache, sources ...AggregateSource) *CacheRefresher {
	r := &CacheRefresher{
		cache:   cache,
		sources: make(map[eventsrc.AggregateKind]AggregateSource, len(sources)),
	}
	for _, src := range sources {
		r.sources[src.Kind()] = src
	}
	return r
}

// Handle reconstructs the aggregate of rec from the event log and caches it.
// Fold errors stay matchable with eventsrc.IsFatal.
func (r *CacheRefresher) Handle(ctx context.Context, rec eventsrc.Record) error {
	src, ok := r.sources[rec.AggregateKind]
	if !ok {
		slog.WarnContext(ctx, "No source for aggregate kind, skipping", "aggregateKind", rec.AggregateKind, "eventID", rec.EventID)
		return nil
	}

	body, seq, err := src.ReconstructJSONAt(ctx, rec.AggregateID)
	if err != nil {
		return fmt.Errorf("failed to reconstruct %s %s: %w", rec.AggregateKind, rec.AggregateID, err)
	}
	if seq < rec.SequenceID {
		return fmt.Errorf("event log of %s %s is at %d, behind record %d", rec.AggregateKind, rec.AggregateID, seq, rec.SequenceID)
	}

	if body == nil {
		slog.InfoContext(ctx, "Aggregate is gone, evicting", "aggregateKind", rec.AggregateKind, "aggregateID", rec.AggregateID)
		if err := r.cache.Evict(ctx, rec.AggregateKind, rec.AggregateID, seq); err != nil {
			return fmt.Errorf("failed to evict %s %s: %w", rec.AggregateKind, rec.AggregateID, err)
		}
		return nil
	}

	if err := r.cache.Put(ctx, rec.AggregateKind, rec.AggregateID, seq, body); err != nil {
		return fmt.Errorf("failed to cache %s %s: %w", rec.AggregateKind, rec.AggregateID, err)
	}
	slog.DebugContext(ctx, "Aggregate cached", "aggregateKind", rec.AggregateKind, "aggregateID", rec.AggregateID, "seq", seq)
	return nil
}
