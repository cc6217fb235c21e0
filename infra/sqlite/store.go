// Package sqlite provides an embedded event and snapshot store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/0m3kk/lunafold/eventsrc"
)

//go:embed schema.sql
var schema string

// Store persists events and snapshots in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; sequence assignment reads then inserts.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Append stores records at the next sequence ids of their partitions.
func (s *Store) Append(ctx context.Context, records []eventsrc.Record) ([]eventsrc.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	type partition struct {
		kind eventsrc.AggregateKind
		id   string
	}
	next := make(map[partition]int64)
	stored := make([]eventsrc.Record, 0, len(records))
	for _, rec := range records {
		p := partition{kind: rec.AggregateKind, id: rec.AggregateID}
		seq, ok := next[p]
		if !ok {
			var last int64
			err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(sequence_id), 0) FROM event_store WHERE aggregate_kind = ? AND aggregate_id = ?`,
				string(p.kind), p.id,
			).Scan(&last)
			if err != nil {
				return nil, fmt.Errorf("get last sequence id: %w", err)
			}
			seq = last + 1
		}
		rec.SequenceID = seq
		next[p] = seq + 1
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)

		_, err := tx.ExecContext(ctx,
			`INSERT INTO event_store (event_id, aggregate_kind, aggregate_id, event_type, sequence_id, payload, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.EventID.String(), string(rec.AggregateKind), rec.AggregateID, string(rec.EventType),
			rec.SequenceID, []byte(rec.Payload), toMillis(rec.CreatedAt),
		)
		if err != nil {
			if isConstraintError(err) {
				return nil, eventsrc.ErrConcurrency{Msg: fmt.Sprintf("concurrency error: %s", err.Error())}
			}
			return nil, fmt.Errorf("insert event: %w", err)
		}
		stored = append(stored, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// ListEvents returns the events of one partition after q.AfterSequenceID, ascending.
func (s *Store) ListEvents(ctx context.Context, q eventsrc.EventQuery) ([]eventsrc.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := `SELECT event_id, aggregate_kind, aggregate_id, event_type, sequence_id, payload, created_at
		FROM event_store
		WHERE aggregate_kind = ? AND aggregate_id = ? AND sequence_id > ?`
	args := []any{string(q.Kind), q.AggregateID, q.AfterSequenceID}
	if len(q.Types) > 0 {
		query += ` AND event_type IN (?` + strings.Repeat(", ?", len(q.Types)-1) + `)`
		for _, t := range q.Types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY sequence_id ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []eventsrc.Record
	for rows.Next() {
		var (
			rec       eventsrc.Record
			kind      string
			eventType string
			payload   []byte
			createdAt int64
		)
		if err := rows.Scan(&rec.EventID, &kind, &rec.AggregateID, &eventType, &rec.SequenceID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.AggregateKind = eventsrc.AggregateKind(kind)
		rec.EventType = eventsrc.EventType(eventType)
		rec.Payload = payload
		rec.CreatedAt = fromMillis(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// LatestSnapshot returns the snapshot with the highest sequence id.
func (s *Store) LatestSnapshot(ctx context.Context, kind eventsrc.AggregateKind, aggregateID string) (eventsrc.SnapshotRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return eventsrc.SnapshotRecord{}, false, err
	}
	rec := eventsrc.SnapshotRecord{AggregateKind: kind, AggregateID: aggregateID}
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT sequence_id, payload FROM snapshots
		 WHERE aggregate_kind = ? AND aggregate_id = ?
		 ORDER BY sequence_id DESC LIMIT 1`,
		string(kind), aggregateID,
	).Scan(&rec.SequenceID, &rec.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return eventsrc.SnapshotRecord{}, false, nil
	}
	if err != nil {
		return eventsrc.SnapshotRecord{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	return rec, true, nil
}

// SaveSnapshot stores a snapshot. Saving the same sequence id twice keeps the first.
func (s *Store) SaveSnapshot(ctx context.Context, rec eventsrc.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_kind, aggregate_id, sequence_id, payload)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (aggregate_kind, aggregate_id, sequence_id) DO NOTHING`,
		string(rec.AggregateKind), rec.AggregateID, rec.SequenceID, rec.Body,
	)
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT || code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
}

var (
	_ eventsrc.EventStore     = (*Store)(nil)
	_ eventsrc.EventAppender  = (*Store)(nil)
	_ eventsrc.SnapshotStore  = (*Store)(nil)
	_ eventsrc.SnapshotWriter = (*Store)(nil)
)
