package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IdempotencyStore implements cqrs.IdempotencyStore for PostgreSQL.
type IdempotencyStore struct {
	db *DB
}

func NewIdempotencyStore(db *DB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// IsProcessed reports whether subscriberID already handled the event.
func (s *IdempotencyStore) IsProcessed(ctx context.Context, eventID uuid.UUID, subscriberID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1 AND subscriber_id = $2)`
	err := s.db.conn(ctx).QueryRow(ctx, query, eventID, subscriberID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for processed event: %w", err)
	}
	return exists, nil
}

// MarkAsProcessed records the event as handled. It must run within a transaction.
func (s *IdempotencyStore) MarkAsProcessed(ctx context.Context, eventID uuid.UUID, subscriberID string) error {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return fmt.Errorf("MarkAsProcessed must be called within a transaction")
	}

	// A concurrent delivery of the same event may already have marked it.
	query := `INSERT INTO processed_events (event_id, subscriber_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, query, eventID, subscriberID); err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	return nil
}
