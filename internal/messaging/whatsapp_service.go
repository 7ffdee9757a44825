package messaging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/whatsapp"
)

// EventSource delivers whatsmeow events (implemented by *whatsapp.Client).
type EventSource interface {
	AddEventHandler(handler whatsmeow.EventHandler) uint32
	RemoveEventHandler(id uint32) bool
}

// WhatsAppService implements Service using the whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client    whatsapp.WhatsAppSender
	events    EventSource // nil when the client is a mock
	responses chan models.Response

	mu        sync.RWMutex
	handlerID uint32
	started   bool
	stopped   bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given sender.
// Inbound events are received only when client also implements EventSource.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client:    client,
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
	if src, ok := client.(EventSource); ok {
		service.events = src
		slog.Debug("WhatsAppService created with event source")
	} else {
		slog.Debug("WhatsAppService created without event source (likely mock)")
	}
	return service
}

// ValidateAndCanonicalizeRecipient accepts a phone number or a full JID.
// User JIDs collapse to their phone number; other JIDs are kept whole.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if strings.Contains(recipient, "@") {
		jid, err := whatsapp.ParseRecipient(recipient)
		if err != nil {
			return "", err
		}
		return whatsapp.IdentityFromJID(jid), nil
	}
	return canonicalPhone("WhatsAppService", recipient)
}

// Start registers the inbound event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return nil
	}
	s.started = true
	if s.events != nil {
		s.handlerID = s.events.AddEventHandler(s.handleEvent)
		slog.Debug("WhatsAppService event handler registered", "handler_id", s.handlerID)
	}
	return nil
}

// Stop unregisters the event handler and closes the responses channel.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.events != nil && s.started {
		s.events.RemoveEventHandler(s.handlerID)
	}
	close(s.responses)
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// SendMessage sends a text message.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	slog.Debug("WhatsAppService SendMessage invoked", "to", to, "body_length", len(body))
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", to)
		return err
	}
	return nil
}

// MarkRead sends a read receipt when the client supports it.
func (s *WhatsAppService) MarkRead(ctx context.Context, chat string, messageID string) error {
	if p, ok := s.client.(whatsapp.PresenceSender); ok && messageID != "" {
		return p.MarkRead(ctx, chat, messageID)
	}
	return nil
}

// SendTyping toggles the typing indicator when the client supports it.
func (s *WhatsAppService) SendTyping(ctx context.Context, chat string, typing bool) error {
	if p, ok := s.client.(whatsapp.PresenceSender); ok {
		return p.SendTyping(ctx, chat, typing)
	}
	return nil
}

// Responses returns a channel of inbound messages.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responses
}

func (s *WhatsAppService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// handleEvent is the whatsmeow event callback.
func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.Connected:
		slog.Info("WhatsAppService connected")
	case *events.Disconnected:
		slog.Warn("WhatsAppService disconnected")
	}
}

// handleIncomingMessage forwards text messages from one-to-one chats.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup || evt.Message == nil {
		return
	}

	var text string
	switch {
	case evt.Message.GetConversation() != "":
		text = evt.Message.GetConversation()
	case evt.Message.GetExtendedTextMessage().GetText() != "":
		text = evt.Message.GetExtendedTextMessage().GetText()
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Chat.String())
		return
	}

	response := models.Response{
		From:      whatsapp.IdentityFromJID(evt.Info.Chat),
		Body:      text,
		Time:      evt.Info.Timestamp.Unix(),
		Name:      evt.Info.PushName,
		MessageID: evt.Info.ID,
	}
	s.emit(response)
}

func (s *WhatsAppService) emit(response models.Response) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("WhatsAppService dropping inbound message (service stopped)", "from", response.From)
		return
	}
	select {
	case s.responses <- response:
		slog.Debug("WhatsAppService incoming message forwarded", "from", response.From, "body_length", len(response.Body))
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", response.From, "timeout", DefaultChannelTimeout)
	}
}
