// Package notify delivers run alerts to external channels. Alerts are
// dispatched to every registered sender (Telegram, Discord) and can be
// filtered by event type so operators receive only what they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/execbot/internal/domain"
)

// Event types emitted by the engine.
const (
	EventRunStarted  = "run_started"
	EventRunComplete = "run_complete"
	EventFill        = "fill"
	EventError       = "error"
)

// Sender is one notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender ("telegram", "discord").
	Name() string
}

// Notifier dispatches notifications to one or more senders, filtered by
// event type. An empty event list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends to all senders if the event type passes the filter. A
// failing sender does not block delivery to the rest; failures are
// combined into the returned error.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// NotifyRunStarted announces a new execution run.
func (n *Notifier) NotifyRunStarted(ctx context.Context, exchange, symbol, mode, side, target string) error {
	title := fmt.Sprintf("Run started: %s %s", side, symbol)
	message := fmt.Sprintf("exchange=%s mode=%s target=%s", exchange, mode, target)
	return n.Notify(ctx, EventRunStarted, title, message)
}

// NotifyRunComplete announces run completion with the final summary.
func (n *Notifier) NotifyRunComplete(ctx context.Context, symbol string, summary domain.SummaryRow) error {
	title := "Run complete: " + symbol
	message := fmt.Sprintf(
		"base=%s quote=%s traded_base=%s traded_quote=%s fee_base=%s fee_quote=%s",
		summary.BaseBalance, summary.QuoteBalance,
		summary.VolumeBaseSum, summary.VolumeQuoteSum,
		summary.FeeBaseSum, summary.FeeQuoteSum,
	)
	return n.Notify(ctx, EventRunComplete, title, message)
}

// NotifyError reports a failure that ended or degraded the run.
func (n *Notifier) NotifyError(ctx context.Context, symbol string, err error) error {
	return n.Notify(ctx, EventError, "Run error: "+symbol, err.Error())
}
