package testutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0m3kk/lunafold/eventsrc"
)

// VersionedRepository is a read model table that satisfies cqrs.VersionedStore.
type VersionedRepository struct {
	pool *pgxpool.Pool
}

func NewVersionedRepository(pool *pgxpool.Pool) *VersionedRepository {
	return &VersionedRepository{pool: pool}
}

func (r *VersionedRepository) CreateTable() error {
	createTableSQL := `
CREATE TABLE IF NOT EXISTS versioned_views (
    aggregate_kind VARCHAR(64) NOT NULL,
    aggregate_id VARCHAR(255) NOT NULL,
    sequence_id BIGINT NOT NULL,
    PRIMARY KEY (aggregate_kind, aggregate_id)
);`
	_, err := r.pool.Exec(context.Background(), createTableSQL)
	return err
}

// SetVersion upserts the sequence id of a view.
func (r *VersionedRepository) SetVersion(ctx context.Context, kind eventsrc.AggregateKind, aggregateID string, seq int64) error {
	query := `
INSERT INTO versioned_views (aggregate_kind, aggregate_id, sequence_id) VALUES ($1, $2, $3)
ON CONFLICT (aggregate_kind, aggregate_id) DO UPDATE SET sequence_id = EXCLUDED.sequence_id`
	_, err := r.pool.Exec(ctx, query, kind, aggregateID, seq)
	return err
}

// GetVersion returns the sequence id the view reflects, 0 when there is no view yet.
func (r *VersionedRepository) GetVersion(ctx context.Context, kind eventsrc.AggregateKind, aggregateID string) (int64, error) {
	var seq int64
	query := `SELECT sequence_id FROM versioned_views WHERE aggregate_kind = $1 AND aggregate_id = $2`
	err := r.pool.QueryRow(ctx, query, kind, aggregateID).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get versioned view version: %w", err)
	}
	return seq, nil
}
