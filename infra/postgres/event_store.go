package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/0m3kk/lunafold/eventsrc"
)

// Store implements the eventsrc event and snapshot store interfaces for PostgreSQL.
type Store struct {
	db     *DB
	outbox *OutboxStore
}

// NewEventStore creates a new PostgreSQL event store. Appended records are
// also written to outbox, in the same transaction, when it is not nil.
func NewEventStore(db *DB, outbox *OutboxStore) *Store {
	return &Store{
		db:     db,
		outbox: outbox,
	}
}

type partition struct {
	kind eventsrc.AggregateKind
	id   string
}

// Append stores records at the next sequence ids of their partitions. It joins
// the transaction carried by ctx, if any. A concurrent writer that took the same
// sequence id, or a reused event id, fails the batch with eventsrc.ErrConcurrency.
func (s *Store) Append(ctx context.Context, records []eventsrc.Record) ([]eventsrc.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var stored []eventsrc.Record
	err := s.db.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		next := make(map[partition]int64)
		stored = make([]eventsrc.Record, 0, len(records))
		for _, rec := range records {
			p := partition{kind: rec.AggregateKind, id: rec.AggregateID}
			seq, ok := next[p]
			if !ok {
				last, err := lastSequenceInTx(ctx, tx, p)
				if err != nil {
					return err
				}
				seq = last + 1
			}
			rec.SequenceID = seq
			next[p] = seq + 1
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = time.Now().UTC()
			}
			stored = append(stored, rec)
		}

		if err := saveEventsInTx(ctx, tx, stored); err != nil {
			return err
		}
		if s.outbox != nil {
			return s.outbox.saveInTx(ctx, tx, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func lastSequenceInTx(ctx context.Context, tx pgx.Tx, p partition) (int64, error) {
	query := `
        SELECT COALESCE(MAX(sequence_id), 0)
        FROM event_store
        WHERE aggregate_kind = $1 AND aggregate_id = $2
    `
	var last int64
	if err := tx.QueryRow(ctx, query, p.kind, p.id).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to read last sequence id of %s %s: %w", p.kind, p.id, err)
	}
	return last, nil
}

func saveEventsInTx(ctx context.Context, tx pgx.Tx, records []eventsrc.Record) error {
	b := &pgx.Batch{}
	stmt := `
        INSERT INTO event_store (event_id, aggregate_kind, aggregate_id, event_type, sequence_id, payload, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	for _, rec := range records {
		b.Queue(stmt, rec.EventID, rec.AggregateKind, rec.AggregateID, rec.EventType, rec.SequenceID, rec.Payload, rec.CreatedAt)
	}

	br := tx.SendBatch(ctx, b)
	defer br.Close()

	for range len(records) {
		if _, err := br.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
				return eventsrc.ErrConcurrency{Msg: fmt.Sprintf("concurrency error: %s", err.Error())}
			}
			return fmt.Errorf("failed to insert event into batch: %w", err)
		}
	}
	return br.Close()
}

// ListEvents returns the events of one partition after q.AfterSequenceID, ascending.
func (s *Store) ListEvents(ctx context.Context, q eventsrc.EventQuery) ([]eventsrc.Record, error) {
	var types []string
	for _, t := range q.Types {
		types = append(types, string(t))
	}

	query := `
        SELECT event_id, aggregate_kind, aggregate_id, event_type, sequence_id, payload, created_at
        FROM event_store
        WHERE aggregate_kind = $1 AND aggregate_id = $2 AND sequence_id > $3
          AND ($4::text[] IS NULL OR event_type = ANY($4))
        ORDER BY sequence_id ASC
    `
	rows, err := s.db.conn(ctx).Query(ctx, query, q.Kind, q.AggregateID, q.AfterSequenceID, types)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	recs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[eventsrc.Record])
	if err != nil {
		return nil, fmt.Errorf("failed to scan event rows: %w", err)
	}
	return recs, nil
}

// LatestSnapshot returns the snapshot with the highest sequence id.
func (s *Store) LatestSnapshot(
	ctx context.Context,
	kind eventsrc.AggregateKind,
	aggregateID string,
) (eventsrc.SnapshotRecord, bool, error) {
	query := `
        SELECT sequence_id, payload
        FROM snapshots
        WHERE aggregate_kind = $1 AND aggregate_id = $2
        ORDER BY sequence_id DESC
        LIMIT 1
    `
	rec := eventsrc.SnapshotRecord{AggregateKind: kind, AggregateID: aggregateID}
	err := s.db.conn(ctx).QueryRow(ctx, query, kind, aggregateID).Scan(&rec.SequenceID, &rec.Body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eventsrc.SnapshotRecord{}, false, nil // No snapshot found, not an error
		}
		return eventsrc.SnapshotRecord{}, false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return rec, true, nil
}

// SaveSnapshot stores a snapshot. Saving the same sequence id twice keeps the first.
func (s *Store) SaveSnapshot(ctx context.Context, rec eventsrc.SnapshotRecord) error {
	query := `
        INSERT INTO snapshots (aggregate_kind, aggregate_id, sequence_id, payload)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (aggregate_kind, aggregate_id, sequence_id) DO NOTHING
    `
	_, err := s.db.conn(ctx).Exec(ctx, query, rec.AggregateKind, rec.AggregateID, rec.SequenceID, rec.Body)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
