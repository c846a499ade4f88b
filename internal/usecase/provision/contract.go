package provision

import (
	"context"

	domprov "github.com/kailas-cloud/traffmeter/internal/domain/provision"
)

// Sessions persists in-flight wizard state between chat messages.
type Sessions interface {
	Get(ctx context.Context, chatID int64) (domprov.Session, error)
	Put(ctx context.Context, chatID int64, sess domprov.Session) error
	Delete(ctx context.Context, chatID int64) error
}

// AccountCreator provisions the finished account in the ledger.
type AccountCreator interface {
	CreatePrincipal(ctx context.Context, username string, dataLimitGiB float64, validityDays int) error
}
