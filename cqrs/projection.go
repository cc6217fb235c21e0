// Package cqrs keeps read models in step with the event log. A Projection
// wraps a handler with idempotency, ordering checks and retries.
package cqrs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/0m3kk/lunafold/eventsrc"
)

// ErrOutOfOrderEvent is returned in strict mode when a record is not the next
// sequence id of its aggregate's view.
var ErrOutOfOrderEvent = errors.New("out of order event")

// IdempotencyStore defines the interface for checking and storing processed event IDs.
type IdempotencyStore interface {
	IsProcessed(ctx context.Context, eventID uuid.UUID, subscriberID string) (bool, error)
	MarkAsProcessed(ctx context.Context, eventID uuid.UUID, subscriberID string) error
}

// VersionedStore is a read model that remembers the sequence id each aggregate's view reflects.
type VersionedStore interface {
	// GetVersion returns 0 if the view does not exist yet.
	GetVersion(ctx context.Context, kind eventsrc.AggregateKind, aggregateID string) (int64, error)
}

// TransactionalHandler defines a function that executes business logic within a transaction.
type TransactionalHandler func(ctx context.Context) error

// Transactor defines an interface for an object that can execute a function within a transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn TransactionalHandler) error
}

// ProjectionHandler main logic for projection view.
type ProjectionHandler func(ctx context.Context, rec eventsrc.Record) error

// Projection is a decorator that wraps a business logic handler
// with idempotency checks and retry logic.
type Projection struct {
	subscriberID   string
	idempStore     IdempotencyStore
	versionStore   VersionedStore
	transactor     Transactor
	handler        ProjectionHandler
	maxElapsedTime time.Duration
	strictOrder    bool
}

// ProjectionOption configures a Projection.
type ProjectionOption func(*Projection)

// WithMaxElapsedTime is an option to provide a custom backoff max elapsed time.
func WithMaxElapsedTime(maxElapsedTime time.Duration) ProjectionOption {
	return func(h *Projection) {
		h.maxElapsedTime = maxElapsedTime
	}
}

// WithStrictOrdering rejects records that skip a sequence id with ErrOutOfOrderEvent.
// Without it a gap is accepted, which suits handlers that reload the whole aggregate.
func WithStrictOrdering() ProjectionOption {
	return func(h *Projection) {
		h.strictOrder = true
	}
}

// NewProjection creates a new idempotent projection.
func NewProjection(
	subscriberID string,
	idempStore IdempotencyStore,
	versionStore VersionedStore,
	transactor Transactor,
	handler ProjectionHandler,
	opts ...ProjectionOption,
) *Projection {
	h := &Projection{
		subscriberID:   subscriberID,
		idempStore:     idempStore,
		versionStore:   versionStore,
		transactor:     transactor,
		handler:        handler,
		maxElapsedTime: 1 * time.Minute,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Handle processes a record with idempotency and retry logic. Fold errors are
// not retried: replaying the same log gives the same error.
func (h *Projection) Handle(ctx context.Context, rec eventsrc.Record) error {
	// 1. Idempotency Check
	isProcessed, err := h.idempStore.IsProcessed(ctx, rec.EventID, h.subscriberID)
	if err != nil {
		return fmt.Errorf("failed to check for event idempotency: %w", err)
	}
	if isProcessed {
		slog.WarnContext(ctx, "Event already processed, skipping", "eventID", rec.EventID, "subscriber", h.subscriberID)
		return nil
	}

	operation := func() (any, error) {
		// 2. Ordering Check, inside the retry loop.
		current, err := h.versionStore.GetVersion(ctx, rec.AggregateKind, rec.AggregateID)
		if err != nil {
			return nil, fmt.Errorf("failed to get current view version: %w", err)
		}
		if rec.SequenceID <= current {
			slog.WarnContext(ctx, "Received old or duplicate event sequence, skipping",
				"eventID", rec.EventID, "eventSeq", rec.SequenceID, "currentSeq", current)
			// Still mark it so a redelivery is not evaluated again.
			return nil, backoff.Permanent(h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
				return h.idempStore.MarkAsProcessed(txCtx, rec.EventID, h.subscriberID)
			}))
		}

		if h.strictOrder && rec.SequenceID != current+1 {
			slog.WarnContext(ctx, "Received out-of-order event, will be retried by the broker",
				"eventID", rec.EventID, "eventSeq", rec.SequenceID, "expectedSeq", current+1)
			return nil, backoff.Permanent(ErrOutOfOrderEvent)
		}

		// 3. Transactional Execution
		txErr := h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := h.handler(txCtx, rec); err != nil {
				return fmt.Errorf("handler business logic failed: %w", err)
			}
			if err := h.idempStore.MarkAsProcessed(txCtx, rec.EventID, h.subscriberID); err != nil {
				return fmt.Errorf("failed to mark event as processed: %w", err)
			}
			return nil
		})

		if txErr != nil && (errors.Is(txErr, context.Canceled) || eventsrc.IsFatal(txErr)) {
			return nil, backoff.Permanent(txErr)
		}
		return nil, txErr
	}

	bo := backoff.NewExponentialBackOff()

	_, err = backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(h.maxElapsedTime))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to process event after multiple retries",
			"error", err,
			"eventID", rec.EventID,
			"aggregateKind", rec.AggregateKind,
			"aggregateID", rec.AggregateID,
			"subscriber", h.subscriberID,
		)
		// The broker redelivers or dead-letters the record.
		return err
	}

	slog.InfoContext(ctx, "Event processed successfully by projection",
		"eventID", rec.EventID,
		"subscriber", h.subscriberID,
	)
	return nil
}
