// Package notify delivers operator alerts over Telegram and Discord,
// filtered by event type so a paper account can stay quiet while a live one
// reports every fill.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

// Event types the engine emits.
const (
	EventOrderFilled    = "order_filled"
	EventPositionClosed = "position_closed"
	EventOrderUnknown   = "order_unknown"
	EventError          = "error"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders, filtered by an
// allowed event-type set. An empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
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

// Notify sends a notification to all senders if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyTrade formats and sends a filled-trade alert.
func (n *Notifier) NotifyTrade(ctx context.Context, ev domain.TradeEvent) error {
	title := fmt.Sprintf("%s %s %s", strings.ToUpper(ev.Side), ev.Symbol, ev.Tier)
	msg := fmt.Sprintf("%d @ %.2f", ev.Quantity, ev.Price)
	if ev.Reason != "" {
		msg += " (" + ev.Reason + ")"
	}
	event := EventOrderFilled
	if ev.Reason == string(domain.ExitReasonStop) || ev.Reason == string(domain.ExitReasonTimeExit) {
		event = EventPositionClosed
	}
	return n.Notify(ctx, event, title, msg)
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
