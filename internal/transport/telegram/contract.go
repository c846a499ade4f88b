package telegram

import (
	"context"

	domusage "github.com/kailas-cloud/traffmeter/internal/domain/usage"
)

// Reporter runs accounting cycles on command.
type Reporter interface {
	ConsumptionReport(ctx context.Context) ([]domusage.Entry, error)
	RebaselineReport(ctx context.Context) ([]domusage.Entry, error)
}

// Wizard drives the account creation conversation.
type Wizard interface {
	Start(ctx context.Context, chatID int64) (string, error)
	Advance(ctx context.Context, chatID int64, input string) (reply string, done bool, err error)
	Cancel(ctx context.Context, chatID int64) error
	InFlight(ctx context.Context, chatID int64) (bool, error)
}
