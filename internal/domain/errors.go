package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLedgerUnavailable signals that the usage ledger could not be queried.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrStoreUnavailable signals that snapshot persistence could not be reached.
	ErrStoreUnavailable = errors.New("snapshot store unavailable")
	// ErrMalformedReading signals a ledger row with a missing principal key.
	ErrMalformedReading = errors.New("malformed ledger reading")

	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidInput signals input that failed validation.
	ErrInvalidInput = errors.New("invalid input")
)

// MalformedReadingError wraps ErrMalformedReading with the offending row index.
type MalformedReadingError struct {
	Row int
}

func (e *MalformedReadingError) Error() string {
	return fmt.Sprintf("%s: row %d has no principal", ErrMalformedReading.Error(), e.Row)
}

func (e *MalformedReadingError) Unwrap() error { return ErrMalformedReading }

// NewMalformedReading creates a malformed reading error for the given row.
func NewMalformedReading(row int) error {
	return &MalformedReadingError{Row: row}
}
