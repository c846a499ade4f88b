package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kailas-cloud/traffmeter/internal/domain"
	domusage "github.com/kailas-cloud/traffmeter/internal/domain/usage"
)

// bytesPerGiB converts raw ledger byte counters to the GiB display unit.
const bytesPerGiB = float64(1 << 30)

// totalsQuery aggregates cumulative usage per principal: live counters of all
// owned consumers plus bytes recorded in the reset log before counters were
// zeroed. A principal with no consumers sums to NULL, normalized to 0 below.
const totalsQuery = `
SELECT p.username,
       COALESCE(SUM(COALESCE(c.used_bytes, 0) + COALESCE(r.reset_bytes, 0)), 0) AS total_bytes
FROM principals p
LEFT JOIN consumers c ON c.principal_id = p.id
LEFT JOIN (
    SELECT consumer_id, SUM(bytes_at_reset) AS reset_bytes
    FROM usage_reset_log
    GROUP BY consumer_id
) r ON r.consumer_id = c.id
GROUP BY p.username`

const createPrincipalQuery = `
INSERT INTO principals (username, data_limit_bytes, expire_at, created_at)
VALUES ($1, $2, $3, NOW())`

// Reader issues read-only aggregation queries against the external usage
// ledger. It owns no state; every call is a fresh query.
type Reader struct {
	db      *sql.DB
	timeout time.Duration
}

// New creates a ledger reader. timeout bounds each query; the engine itself
// never retries or cancels.
func New(db *sql.DB, timeout time.Duration) *Reader {
	return &Reader{db: db, timeout: timeout}
}

// ReadTotals returns one cumulative reading per principal, in query order.
// A NULL usage sum is normalized to 0 before it reaches the caller; a row
// with a NULL or empty principal fails the whole read.
func (r *Reader) ReadTotals(ctx context.Context) ([]domusage.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, totalsQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: query totals: %w", domain.ErrLedgerUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var readings []domusage.Reading
	for i := 0; rows.Next(); i++ {
		var principal sql.NullString
		var totalBytes sql.NullFloat64
		if err := rows.Scan(&principal, &totalBytes); err != nil {
			return nil, fmt.Errorf("%w: scan totals row: %w", domain.ErrLedgerUnavailable, err)
		}
		if !principal.Valid || principal.String == "" {
			return nil, domain.NewMalformedReading(i)
		}

		reading, err := domusage.NewReading(principal.String, totalBytes.Float64/bytesPerGiB)
		if err != nil {
			return nil, fmt.Errorf("reading for %s: %w", principal.String, err)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate totals: %w", domain.ErrLedgerUnavailable, err)
	}

	return readings, nil
}

// CreatePrincipal inserts a new principal row with the given traffic limit
// and validity window. A duplicate username maps to domain.ErrAlreadyExists.
func (r *Reader) CreatePrincipal(ctx context.Context, username string, dataLimitGiB float64, validityDays int) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	limitBytes := int64(dataLimitGiB * bytesPerGiB)
	expireAt := time.Now().UTC().AddDate(0, 0, validityDays)

	if _, err := r.db.ExecContext(ctx, createPrincipalQuery, username, limitBytes, expireAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return fmt.Errorf("principal %s: %w", username, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("%w: create principal %s: %w", domain.ErrLedgerUnavailable, username, err)
	}
	return nil
}

// Ping checks ledger database connectivity.
func (r *Reader) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping ledger: %w", err)
	}
	return nil
}
