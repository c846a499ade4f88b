package usage

import (
	"errors"
	"fmt"
)

// ErrNegativeUsage signals a negative usage value where only cumulative
// readings are allowed.
var ErrNegativeUsage = errors.New("usage value must be non-negative")

// Reading is a point-in-time cumulative usage total for one principal,
// as returned by a single ledger query. Readings are transient and never
// persisted as-is.
type Reading struct {
	principal string
	totalGiB  float64
}

// NewReading creates a ledger reading. The principal must be non-empty and
// the total non-negative; callers normalize NULL ledger sums to 0 before
// constructing a Reading.
func NewReading(principal string, totalGiB float64) (Reading, error) {
	if principal == "" {
		return Reading{}, errors.New("principal is required")
	}
	if totalGiB < 0 {
		return Reading{}, fmt.Errorf("%w: %f", ErrNegativeUsage, totalGiB)
	}
	return Reading{principal: principal, totalGiB: totalGiB}, nil
}

// Principal returns the account the reading belongs to.
func (r Reading) Principal() string { return r.principal }

// TotalGiB returns the cumulative ledger total in GiB.
func (r Reading) TotalGiB() float64 { return r.totalGiB }

// Snapshot holds the last two cumulative totals observed for a principal.
// Both fields are ledger readings, not deltas.
type Snapshot struct {
	previousGiB float64
	currentGiB  float64
}

// NewSnapshot creates a snapshot from two observed totals.
func NewSnapshot(previousGiB, currentGiB float64) (Snapshot, error) {
	if previousGiB < 0 || currentGiB < 0 {
		return Snapshot{}, ErrNegativeUsage
	}
	return Snapshot{previousGiB: previousGiB, currentGiB: currentGiB}, nil
}

// PreviousGiB returns the total observed at the prior accounting cycle.
func (s Snapshot) PreviousGiB() float64 { return s.previousGiB }

// CurrentGiB returns the total observed at the most recent accounting cycle.
func (s Snapshot) CurrentGiB() float64 { return s.currentGiB }

// Entry is one line of a report: a principal and either its cumulative total
// (rebaseline report) or its consumption since the previous cycle.
type Entry struct {
	principal string
	valueGiB  float64
}

// NewEntry creates a report entry.
func NewEntry(principal string, valueGiB float64) Entry {
	return Entry{principal: principal, valueGiB: valueGiB}
}

// Principal returns the account the entry belongs to.
func (e Entry) Principal() string { return e.principal }

// ValueGiB returns the reported value in GiB.
func (e Entry) ValueGiB() float64 { return e.valueGiB }
