package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/0m3kk/lunafold/eventsrc"
)

// OutboxStore implements outbox.Store for PostgreSQL.
type OutboxStore struct {
	db *DB
}

func NewOutboxStore(db *DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// ProcessOutboxBatch locks a batch of unpublished records, hands them to
// processFunc and marks them as published, all in one transaction. Workers
// running concurrently never receive the same record.
func (s *OutboxStore) ProcessOutboxBatch(
	ctx context.Context,
	batchSize int,
	processFunc func(ctx context.Context, records []eventsrc.Record) error,
) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for processing outbox batch: %w", err)
	}
	defer tx.Rollback(ctx)

	records, err := fetchAndLockUnpublishedInTx(ctx, tx, batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch and lock records: %w", err)
	}

	if len(records) == 0 {
		return nil
	}

	// An error rolls back the batch so that it is picked up again.
	if err := processFunc(ctx, records); err != nil {
		return fmt.Errorf("outbox processing function failed: %w", err)
	}

	if err := markAsPublishedInTx(ctx, tx, records); err != nil {
		return fmt.Errorf("failed to mark records as published: %w", err)
	}

	return tx.Commit(ctx)
}

func fetchAndLockUnpublishedInTx(ctx context.Context, tx pgx.Tx, batchSize int) ([]eventsrc.Record, error) {
	query := `
        SELECT event_id, aggregate_kind, aggregate_id, event_type, sequence_id, payload, created_at
        FROM outbox
        WHERE published = FALSE
        ORDER BY created_at, sequence_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED
    `
	rows, err := tx.Query(ctx, query, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowToStructByPos[eventsrc.Record])
}

func markAsPublishedInTx(ctx context.Context, tx pgx.Tx, records []eventsrc.Record) error {
	eventIDs := make([]uuid.UUID, len(records))
	for i, rec := range records {
		eventIDs[i] = rec.EventID
	}

	query := `UPDATE outbox SET published = TRUE WHERE event_id = ANY($1)`
	cmdTag, err := tx.Exec(ctx, query, eventIDs)
	if err != nil {
		return fmt.Errorf("failed to execute update for marking records as published: %w", err)
	}

	if cmdTag.RowsAffected() != int64(len(eventIDs)) {
		return fmt.Errorf(
			"consistency error: expected to mark %d records, but marked %d",
			len(eventIDs),
			cmdTag.RowsAffected(),
		)
	}

	return nil
}

// SaveRecords writes stored records to the outbox. It must run within a transaction.
func (s *OutboxStore) SaveRecords(ctx context.Context, records []eventsrc.Record) error {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return fmt.Errorf("SaveRecords must be called within a transaction")
	}
	return s.saveInTx(ctx, tx, records)
}

func (s *OutboxStore) saveInTx(ctx context.Context, tx pgx.Tx, records []eventsrc.Record) error {
	b := &pgx.Batch{}
	stmt := `
        INSERT INTO outbox (event_id, aggregate_kind, aggregate_id, event_type, sequence_id, payload, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	for _, rec := range records {
		b.Queue(stmt, rec.EventID, rec.AggregateKind, rec.AggregateID, rec.EventType, rec.SequenceID, rec.Payload, rec.CreatedAt)
	}

	br := tx.SendBatch(ctx, b)
	defer br.Close()

	for i := range len(records) {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert record #%d into outbox batch: %w", i+1, err)
		}
	}

	return br.Close()
}
