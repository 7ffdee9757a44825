// Package notify delivers out-of-band notifications to the clinic admin when a
// booking is confirmed.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoRecipient is returned by a notifier constructed without a destination.
var ErrNoRecipient = errors.New("notification recipient not configured")

// Notifier delivers a plain-text notification to the admin.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// MessageSender sends a chat message; messaging.Service satisfies it.
type MessageSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// MessageNotifier sends notifications as chat messages through the active gateway.
type MessageNotifier struct {
	sender MessageSender
	to     string
}

// NewMessageNotifier returns a notifier that messages the admin at to.
func NewMessageNotifier(sender MessageSender, to string) *MessageNotifier {
	return &MessageNotifier{sender: sender, to: to}
}

func (n *MessageNotifier) Notify(ctx context.Context, text string) error {
	if n.to == "" {
		return ErrNoRecipient
	}
	if err := n.sender.SendMessage(ctx, n.to, text); err != nil {
		return fmt.Errorf("admin message to %s failed: %w", n.to, err)
	}
	slog.Debug("MessageNotifier Notify succeeded", "to", n.to)
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes notifications to the log. It is the fallback when no admin
// channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, text string) error {
	slog.Info("Admin notification", "text", text)
	return nil
}
