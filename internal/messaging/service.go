// Package messaging connects the chat gateways to the booking conversation.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// Constants for service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the responses channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines how long an inbound message may wait for buffer space
	DefaultChannelTimeout = 1 * time.Second
	// minPhoneDigits is the shortest accepted phone number
	minPhoneDigits = 6
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message gateway.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a recipient and returns the
	// identity used for sessions and outbound messages.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins receiving inbound messages.
	Start(ctx context.Context) error

	// Stop stops receiving and closes the Responses channel.
	Stop() error

	// Responses returns a channel of inbound customer messages.
	Responses() <-chan models.Response
}

// PresenceService is implemented by gateways that support read receipts and
// typing indicators.
type PresenceService interface {
	MarkRead(ctx context.Context, chat string, messageID string) error
	SendTyping(ctx context.Context, chat string, typing bool) error
}

// TurnHandler runs one dialogue turn and returns the reply ("" for none).
type TurnHandler interface {
	HandleTurn(ctx context.Context, msg models.Response) string
}

// canonicalPhone strips everything but digits and checks the length.
func canonicalPhone(service, recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < minPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, minPhoneDigits)
	}
	if canonical != recipient {
		slog.Debug(service+" canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
