package provision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/traffmeter/internal/domain"
	domprov "github.com/kailas-cloud/traffmeter/internal/domain/provision"
)

// Wizard prompts. Each invalid input repeats the step with a hint; the
// session stays in the same state until the input validates.
const (
	PromptUsername  = "Enter a username for the new account (3-32 chars, lowercase letters, digits, underscore):"
	PromptDataLimit = "Enter the traffic limit in GiB (0 for unlimited):"
	PromptDays      = "Enter the validity period in days (1-3650):"
)

const maxValidityDays = 3650

var usernameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{2,31}$`)

// Service drives the account creation wizard: an explicit state machine
// (awaiting username -> data limit -> days -> done) persisted per chat, so
// a wizard survives process restarts and expires via the session TTL.
type Service struct {
	sessions Sessions
	creator  AccountCreator
	logger   *zap.Logger
}

// New creates the wizard service.
func New(sessions Sessions, creator AccountCreator, logger *zap.Logger) *Service {
	return &Service{sessions: sessions, creator: creator, logger: logger}
}

// Start begins a wizard for the chat, replacing any in-flight one, and
// returns the first prompt.
func (s *Service) Start(ctx context.Context, chatID int64) (string, error) {
	if err := s.sessions.Put(ctx, chatID, domprov.NewSession()); err != nil {
		return "", fmt.Errorf("start wizard: %w", err)
	}
	return PromptUsername, nil
}

// Cancel abandons the in-flight wizard for the chat, if any.
func (s *Service) Cancel(ctx context.Context, chatID int64) error {
	if err := s.sessions.Delete(ctx, chatID); err != nil {
		return fmt.Errorf("cancel wizard: %w", err)
	}
	return nil
}

// InFlight reports whether the chat has a wizard waiting for input.
func (s *Service) InFlight(ctx context.Context, chatID int64) (bool, error) {
	_, err := s.sessions.Get(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check wizard: %w", err)
	}
	return true, nil
}

// Advance feeds one chat message into the wizard and returns the next
// prompt. done is true once the account has been created and the session
// cleared. Returns domain.ErrNotFound when no wizard is in flight.
func (s *Service) Advance(ctx context.Context, chatID int64, input string) (reply string, done bool, err error) {
	sess, err := s.sessions.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", false, domain.ErrNotFound
		}
		return "", false, fmt.Errorf("load wizard: %w", err)
	}

	input = strings.TrimSpace(input)

	switch sess.State() {
	case domprov.StateAwaitingUsername:
		return s.advanceUsername(ctx, chatID, sess, input)
	case domprov.StateAwaitingDataLimit:
		return s.advanceDataLimit(ctx, chatID, sess, input)
	case domprov.StateAwaitingDays:
		return s.advanceDays(ctx, chatID, sess, input)
	default:
		// A done session should have been deleted; treat as not in flight.
		return "", false, domain.ErrNotFound
	}
}

func (s *Service) advanceUsername(ctx context.Context, chatID int64, sess domprov.Session, input string) (string, bool, error) {
	if !usernameRegex.MatchString(input) {
		return "That username is not valid. " + PromptUsername, false, nil
	}
	if err := s.sessions.Put(ctx, chatID, sess.WithUsername(input)); err != nil {
		return "", false, fmt.Errorf("save wizard: %w", err)
	}
	return PromptDataLimit, false, nil
}

func (s *Service) advanceDataLimit(ctx context.Context, chatID int64, sess domprov.Session, input string) (string, bool, error) {
	limit, err := strconv.ParseFloat(input, 64)
	if err != nil || limit < 0 {
		return "That limit is not valid. " + PromptDataLimit, false, nil
	}
	if err := s.sessions.Put(ctx, chatID, sess.WithDataLimit(limit)); err != nil {
		return "", false, fmt.Errorf("save wizard: %w", err)
	}
	return PromptDays, false, nil
}

func (s *Service) advanceDays(ctx context.Context, chatID int64, sess domprov.Session, input string) (string, bool, error) {
	days, err := strconv.Atoi(input)
	if err != nil || days < 1 || days > maxValidityDays {
		return "That period is not valid. " + PromptDays, false, nil
	}

	sess = sess.WithDays(days)
	if err := s.creator.CreatePrincipal(ctx, sess.Username(), sess.DataLimitGiB(), sess.ValidityDays()); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Back to the first step: the collected name is taken.
			if putErr := s.sessions.Put(ctx, chatID, domprov.NewSession()); putErr != nil {
				return "", false, fmt.Errorf("restart wizard: %w", putErr)
			}
			return "That username is already taken. " + PromptUsername, false, nil
		}
		return "", false, fmt.Errorf("create account: %w", err)
	}

	if err := s.sessions.Delete(ctx, chatID); err != nil {
		// The account exists; a stale session is the lesser problem.
		s.logger.Warn("failed to clear finished wizard session",
			zap.Int64("chat_id", chatID), zap.Error(err))
	}

	s.logger.Info("account provisioned",
		zap.String("username", sess.Username()),
		zap.Float64("data_limit_gib", sess.DataLimitGiB()),
		zap.Int("validity_days", sess.ValidityDays()),
	)

	return fmt.Sprintf("Account %s created: %s traffic, valid %d days.",
		sess.Username(), formatLimit(sess.DataLimitGiB()), sess.ValidityDays()), true, nil
}

func formatLimit(gib float64) string {
	if gib == 0 {
		return "unlimited"
	}
	return strconv.FormatFloat(gib, 'f', -1, 64) + " GiB"
}
