package telegram

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sender delivers a formatted message to a chat.
type Sender interface {
	Send(chatID int64, text string)
}

// Scheduler runs a consumption cycle on a fixed interval and pushes the
// result to the reporting chat.
type Scheduler struct {
	reports  Reporter
	sender   Sender
	chatID   int64
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a periodic consumption reporter.
func NewScheduler(reports Reporter, sender Sender, chatID int64, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		reports:  reports,
		sender:   sender,
		chatID:   chatID,
		interval: interval,
		logger:   logger,
	}
}

// Run ticks until the context is cancelled. A failed cycle is logged and
// retried on the next tick; the baseline only advances on success, so no
// consumption is lost.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	entries, err := s.reports.ConsumptionReport(ctx)
	if err != nil {
		s.logger.Error("scheduled consumption cycle failed", zap.Error(err))
		return
	}
	s.sender.Send(s.chatID, formatReport("Consumption since last report", entries))
}
