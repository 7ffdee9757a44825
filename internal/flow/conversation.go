package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/metrics"
	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/notify"
	"github.com/BTreeMap/BookingPipe/internal/session"
)

// DefaultNotifyTimeout bounds the admin notification sent after a booking.
// Notifications are sent in the background; the customer's reply never waits
// for them.
const DefaultNotifyTimeout = 10 * time.Second

// BookingAppender persists confirmed bookings; store.BookingStore satisfies it.
type BookingAppender interface {
	AppendBooking(ctx context.Context, b models.Booking) error
}

// Conversation runs complete turns: it serializes turns per identity, loads the
// session, dispatches, applies the finalize effect and writes the session back.
type Conversation struct {
	dispatcher    *Dispatcher
	sessions      session.Store
	locker        *session.Locker
	bookings      BookingAppender
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	notifyTimeout time.Duration
	now           func() time.Time

	pending sync.WaitGroup
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithNotifier sets the admin notification channel (default: log only).
func WithNotifier(n notify.Notifier) ConversationOption {
	return func(c *Conversation) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithMetrics records turn metrics.
func WithMetrics(m *metrics.Metrics) ConversationOption {
	return func(c *Conversation) { c.metrics = m }
}

// WithLocker shares a per-identity locker with other components.
func WithLocker(l *session.Locker) ConversationOption {
	return func(c *Conversation) {
		if l != nil {
			c.locker = l
		}
	}
}

// WithClock overrides the booking timestamp source.
func WithClock(now func() time.Time) ConversationOption {
	return func(c *Conversation) { c.now = now }
}

// WithNotifyTimeout bounds the admin notification call.
func WithNotifyTimeout(d time.Duration) ConversationOption {
	return func(c *Conversation) {
		if d > 0 {
			c.notifyTimeout = d
		}
	}
}

// NewConversation wires a turn runner.
func NewConversation(d *Dispatcher, sessions session.Store, bookings BookingAppender, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		dispatcher:    d,
		sessions:      sessions,
		locker:        session.NewLocker(),
		bookings:      bookings,
		notifier:      notify.LogNotifier{},
		notifyTimeout: DefaultNotifyTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleTurn processes one inbound message and returns the reply to send.
// An empty reply means the message is ignored. Failures are converted into
// replies here and never escape the turn.
func (c *Conversation) HandleTurn(ctx context.Context, msg models.Response) string {
	start := time.Now()
	identity := msg.From

	unlock := c.locker.Lock(identity)
	defer unlock()

	current, err := c.sessions.GetOrCreate(ctx, identity)
	if err != nil {
		slog.Error("Conversation HandleTurn session load failed", "identity", identity, "error", err)
		c.metrics.ObserveTurn("UNKNOWN", metrics.OutcomeError, time.Since(start))
		return ReplyTemporaryFailure
	}
	step := current.Step.String()

	out, err := c.dispatcher.Dispatch(ctx, current, msg.Body)
	if err != nil {
		slog.Error("Conversation HandleTurn dispatch failed", "identity", identity, "step", step, "error", err)
		c.metrics.ObserveTurn(step, metrics.OutcomeError, time.Since(start))
		return ReplyTemporaryFailure
	}

	reply := out.Reply
	outcome := metrics.OutcomeReplied
	if reply == "" {
		outcome = metrics.OutcomeSilent
	}

	if out.Finalize != nil {
		booking := models.NewBooking(msg.DisplayName(), identity, out.Finalize.Service, out.Finalize.Date, out.Finalize.Time, c.now())
		if err := c.bookings.AppendBooking(ctx, booking); err != nil {
			slog.Error("Conversation HandleTurn booking append failed", "identity", identity, "date", booking.Date, "time", booking.Time, "error", err)
			c.metrics.PersistenceFailed()
			c.metrics.ObserveTurn(step, metrics.OutcomeError, time.Since(start))
			// The session is left untouched so the user can confirm again.
			return ReplyPersistenceFailed
		}
		slog.Info("Conversation HandleTurn booking recorded", "identity", identity, "id", booking.ID, "service", booking.Service, "date", booking.Date, "time", booking.Time)
		c.metrics.BookingAppended(booking.Service)
		c.notifyAdmin(ctx, booking)

		// The booking is stored; clearing the session must not fail the turn.
		c.resetAfterBooking(ctx, identity)
		c.metrics.ObserveTurn(step, metrics.OutcomeBooked, time.Since(start))
		return ReplyBooked
	}

	if out.Session == nil {
		if err := c.sessions.Delete(ctx, identity); err != nil {
			slog.Error("Conversation HandleTurn session delete failed", "identity", identity, "error", err)
			c.metrics.ObserveTurn(step, metrics.OutcomeError, time.Since(start))
			return ReplyTemporaryFailure
		}
	} else if err := c.sessions.Replace(ctx, identity, out.Session); err != nil {
		slog.Error("Conversation HandleTurn session write failed", "identity", identity, "step", out.Session.Step.String(), "error", err)
		c.metrics.ObserveTurn(step, metrics.OutcomeError, time.Since(start))
		return ReplyTemporaryFailure
	}

	slog.Debug("Conversation HandleTurn completed", "identity", identity, "step", step, "outcome", outcome)
	c.metrics.ObserveTurn(step, outcome, time.Since(start))
	return reply
}

// resetAfterBooking removes the finished session. If the delete fails the
// session is overwritten with a fresh one, so a repeated "1" cannot append the
// same booking twice.
func (c *Conversation) resetAfterBooking(ctx context.Context, identity string) {
	err := c.sessions.Delete(ctx, identity)
	if err == nil {
		return
	}
	slog.Error("Conversation resetAfterBooking session delete failed, overwriting", "identity", identity, "error", err)
	if err := c.sessions.Replace(ctx, identity, session.New(identity)); err != nil {
		slog.Error("Conversation resetAfterBooking session overwrite failed", "identity", identity, "error", err)
	}
}

// notifyAdmin sends the new-booking notice in the background. Failures are
// logged and never affect the booking.
func (c *Conversation) notifyAdmin(ctx context.Context, b models.Booking) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.notifyTimeout)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer cancel()
		if err := c.notifier.Notify(nctx, AdminNotification(b)); err != nil {
			slog.Warn("Conversation notifyAdmin failed", "id", b.ID, "error", err)
			c.metrics.NotifyFailed()
		}
	}()
}

// Wait blocks until every background admin notification has finished.
func (c *Conversation) Wait() {
	c.pending.Wait()
}
