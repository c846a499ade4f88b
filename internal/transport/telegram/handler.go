package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/traffmeter/internal/domain"
	domusage "github.com/kailas-cloud/traffmeter/internal/domain/usage"
)

const helpText = `<b>Commands</b>
/usage — current totals, baseline reset
/consumption — traffic since the last /consumption
/newaccount — create an account (wizard)
/cancel — abandon the wizard
/help — this message`

// Handler turns one incoming chat message into a reply. It is transport
// agnostic so the command logic can be tested without the Bot API.
type Handler struct {
	reports Reporter
	wizard  Wizard
	allowed map[int64]struct{}
	logger  *zap.Logger
}

// NewHandler creates a chat command handler. Only chat IDs in allowedChatIDs
// get replies; everything else is dropped.
func NewHandler(reports Reporter, wizard Wizard, allowedChatIDs []int64, logger *zap.Logger) *Handler {
	allowed := make(map[int64]struct{}, len(allowedChatIDs))
	for _, id := range allowedChatIDs {
		allowed[id] = struct{}{}
	}
	return &Handler{reports: reports, wizard: wizard, allowed: allowed, logger: logger}
}

// HandleMessage processes one message and returns the HTML reply. An empty
// reply means the message is ignored (unauthorized chat).
func (h *Handler) HandleMessage(ctx context.Context, chatID int64, text string) string {
	if _, ok := h.allowed[chatID]; !ok {
		h.logger.Warn("message from unauthorized chat", zap.Int64("chat_id", chatID))
		return ""
	}

	text = strings.TrimSpace(text)
	cmd, _, _ := strings.Cut(text, " ")

	switch cmd {
	case "/start", "/help":
		return helpText
	case "/usage":
		return h.runReport(ctx, "Current usage", h.reports.RebaselineReport)
	case "/consumption":
		return h.runReport(ctx, "Consumption since last report", h.reports.ConsumptionReport)
	case "/newaccount":
		return h.startWizard(ctx, chatID)
	case "/cancel":
		return h.cancelWizard(ctx, chatID)
	default:
		return h.freeText(ctx, chatID, text)
	}
}

func (h *Handler) runReport(ctx context.Context, title string, run func(context.Context) ([]domusage.Entry, error)) string {
	entries, err := run(ctx)
	if err != nil {
		h.logger.Error("report command failed", zap.Error(err))
		return reportErrorText(err)
	}
	return formatReport(title, entries)
}

func (h *Handler) startWizard(ctx context.Context, chatID int64) string {
	prompt, err := h.wizard.Start(ctx, chatID)
	if err != nil {
		h.logger.Error("wizard start failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return "Could not start the wizard, try again later."
	}
	return html.EscapeString(prompt)
}

func (h *Handler) cancelWizard(ctx context.Context, chatID int64) string {
	if err := h.wizard.Cancel(ctx, chatID); err != nil {
		h.logger.Error("wizard cancel failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return "Could not cancel the wizard, try again later."
	}
	return "Wizard cancelled."
}

// freeText feeds non-command text into an in-flight wizard, or points to
// /help when none is running.
func (h *Handler) freeText(ctx context.Context, chatID int64, text string) string {
	reply, _, err := h.wizard.Advance(ctx, chatID, text)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "Unknown command. See /help."
		}
		h.logger.Error("wizard advance failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return "Something went wrong, try again later."
	}
	return html.EscapeString(reply)
}

func reportErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return "The ledger database is unavailable, try again later."
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "The snapshot store is unavailable, try again later."
	case errors.Is(err, domain.ErrMalformedReading):
		return "The ledger returned a malformed reading, check the database."
	default:
		return "Report failed, try again later."
	}
}

// formatReport renders entries as an HTML table-ish block, largest first.
func formatReport(title string, entries []domusage.Entry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("<b>%s</b>\nNo principals found.", title)
	}

	sorted := make([]domusage.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ValueGiB() > sorted[j].ValueGiB()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", title)
	var total float64
	for _, e := range sorted {
		fmt.Fprintf(&b, "<code>%s</code> — %.2f GiB\n", html.EscapeString(e.Principal()), e.ValueGiB())
		total += e.ValueGiB()
	}
	fmt.Fprintf(&b, "<b>Total:</b> %.2f GiB", total)
	return b.String()
}
