package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kailas-cloud/traffmeter/internal/domain"
	domusage "github.com/kailas-cloud/traffmeter/internal/domain/usage"
)

const schemaQuery = `
CREATE TABLE IF NOT EXISTS usage_snapshots (
    principal      TEXT PRIMARY KEY,
    previous_usage DOUBLE PRECISION NOT NULL CHECK (previous_usage >= 0),
    current_usage  DOUBLE PRECISION NOT NULL CHECK (current_usage >= 0)
)`

const insertQuery = `
INSERT INTO usage_snapshots (principal, previous_usage, current_usage)
VALUES ($1, 0, $2)`

// upsertQuery shifts the stored current total into previous_usage and writes
// the fresh reading as current_usage. One statement per principal keeps the
// previous/current pair atomic per row.
const upsertQuery = `
INSERT INTO usage_snapshots (principal, previous_usage, current_usage)
VALUES ($1, 0, $2)
ON CONFLICT (principal) DO UPDATE
SET previous_usage = usage_snapshots.current_usage,
    current_usage  = EXCLUDED.current_usage`

const getAllQuery = `
SELECT principal, previous_usage, current_usage FROM usage_snapshots`

// Store is the sole owner of the usage_snapshots relation. No other
// component reads or writes the table directly.
type Store struct {
	db *sql.DB
}

// New creates a snapshot store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the snapshot table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaQuery); err != nil {
		return fmt.Errorf("%w: ensure schema: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// ReplaceAll discards the entire snapshot set and inserts one row per
// reading with previous_usage = 0. The delete and inserts run in a single
// transaction so a concurrent read never observes a half-rebaselined set.
func (s *Store) ReplaceAll(ctx context.Context, readings []domusage.Reading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin replace: %w", domain.ErrStoreUnavailable, err)
	}

	if err := replaceAllTx(ctx, tx, readings); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w: rollback: %w", domain.ErrStoreUnavailable, errors.Join(err, rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit replace: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func replaceAllTx(ctx context.Context, tx *sql.Tx, readings []domusage.Reading) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_snapshots`); err != nil {
		return fmt.Errorf("%w: clear snapshots: %w", domain.ErrStoreUnavailable, err)
	}
	for _, reading := range readings {
		if _, err := tx.ExecContext(ctx, insertQuery, reading.Principal(), reading.TotalGiB()); err != nil {
			return fmt.Errorf("%w: insert snapshot %s: %w", domain.ErrStoreUnavailable, reading.Principal(), err)
		}
	}
	return nil
}

// Upsert advances the baseline for each principal present in readings:
// an existing row's current_usage becomes previous_usage and the new total
// becomes current_usage; unseen principals are inserted with previous = 0.
// Principals absent from readings are left untouched.
func (s *Store) Upsert(ctx context.Context, readings []domusage.Reading) error {
	for _, reading := range readings {
		if _, err := s.db.ExecContext(ctx, upsertQuery, reading.Principal(), reading.TotalGiB()); err != nil {
			return fmt.Errorf("%w: upsert snapshot %s: %w", domain.ErrStoreUnavailable, reading.Principal(), err)
		}
	}
	return nil
}

// GetAll returns the full snapshot set keyed by principal. An empty table
// yields an empty map, never an error.
func (s *Store) GetAll(ctx context.Context) (map[string]domusage.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, getAllQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: query snapshots: %w", domain.ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	snapshots := make(map[string]domusage.Snapshot)
	for rows.Next() {
		var principal string
		var previous, current float64
		if err := rows.Scan(&principal, &previous, &current); err != nil {
			return nil, fmt.Errorf("%w: scan snapshot row: %w", domain.ErrStoreUnavailable, err)
		}
		snap, err := domusage.NewSnapshot(previous, current)
		if err != nil {
			return nil, fmt.Errorf("snapshot for %s: %w", principal, err)
		}
		snapshots[principal] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate snapshots: %w", domain.ErrStoreUnavailable, err)
	}

	return snapshots, nil
}

// Ping checks snapshot database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping snapshot store: %w", err)
	}
	return nil
}
