// Package flow implements the booking dialogue: a per-turn step dispatcher and
// the conversation runner that applies its outcomes.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/BookingPipe/internal/catalog"
	"github.com/BTreeMap/BookingPipe/internal/session"
	"github.com/BTreeMap/BookingPipe/internal/slot"
)

// Global command tokens, matched after normalization.
const (
	TokenCancel = "#"
	TokenBack   = "9"
)

var resetTokens = map[string]bool{"0": true, "menu": true, "halo": true}

// Menu choices at StepMenu.
const (
	menuBook     = "1"
	menuHours    = "2"
	menuServices = "3"
	confirmYes   = "1"
)

// SlotLister computes the bookable times for a date.
type SlotLister interface {
	AvailableSlots(ctx context.Context, date slot.Date) ([]slot.Time, error)
}

// BookingDraft is the data collected by the dialogue, ready to be persisted.
type BookingDraft struct {
	Service string
	Date    slot.Date
	Time    slot.Time
}

// Outcome is the result of dispatching one turn.
type Outcome struct {
	// Session is the state to write back; nil means the session must be deleted.
	Session *session.Session
	// Reply is the text to send; empty means the turn is silently ignored.
	Reply string
	// Finalize, when set, asks the caller to persist the booking. On success
	// the caller deletes the session; on failure it keeps Session as is.
	Finalize *BookingDraft
}

// Dispatcher maps (session, input) to an Outcome. It performs no I/O other
// than the slot query at date selection.
type Dispatcher struct {
	catalog *catalog.Catalog
	slots   SlotLister
}

// NewDispatcher creates a dispatcher over a service catalog and slot source.
func NewDispatcher(cat *catalog.Catalog, slots SlotLister) *Dispatcher {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Dispatcher{catalog: cat, slots: slots}
}

// Catalog returns the service catalog used by the dispatcher.
func (d *Dispatcher) Catalog() *catalog.Catalog { return d.catalog }

// Normalize trims and lower-cases raw input.
func Normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// Dispatch runs one dialogue turn. The given session is not modified; the
// returned Outcome carries the next state. An error is returned only when the
// slot query fails, in which case nothing has changed.
func (d *Dispatcher) Dispatch(ctx context.Context, current *session.Session, input string) (Outcome, error) {
	text := Normalize(input)
	s := current.Clone()

	switch {
	case resetTokens[text]:
		return Outcome{Session: session.New(s.Identity), Reply: ReplyMainMenu}, nil
	case text == TokenCancel:
		return Outcome{Reply: ReplyCancelled}, nil
	case text == TokenBack:
		s.Back()
		return Outcome{Session: s, Reply: ReplyBack}, nil
	}

	switch s.Step {
	case session.StepMenu:
		return d.menu(s, text), nil
	case session.StepChooseService:
		return d.chooseService(s, text), nil
	case session.StepChooseDate:
		return d.chooseDate(ctx, s, text)
	case session.StepChooseTime:
		return d.chooseTime(s, text), nil
	case session.StepConfirm:
		return d.confirm(s, text), nil
	default:
		slog.Warn("Dispatcher Dispatch unknown step, resetting", "identity", s.Identity, "step", int(s.Step))
		return Outcome{Session: session.New(s.Identity), Reply: ReplyMainMenu}, nil
	}
}

func (d *Dispatcher) menu(s *session.Session, text string) Outcome {
	switch text {
	case menuBook:
		s.Advance(session.StepChooseService)
		return Outcome{Session: s, Reply: ServiceMenu(d.catalog)}
	case menuHours:
		return Outcome{Session: s, Reply: ReplyHours}
	case menuServices:
		return Outcome{Session: s, Reply: ServiceInfo(d.catalog)}
	default:
		return Outcome{Session: s}
	}
}

func (d *Dispatcher) chooseService(s *session.Session, text string) Outcome {
	svc, ok := d.catalog.Lookup(text)
	if !ok {
		return Outcome{Session: s, Reply: InvalidService(d.catalog)}
	}
	s.Service = svc.Label
	s.Advance(session.StepChooseDate)
	return Outcome{Session: s, Reply: ReplyDatePrompt}
}

func (d *Dispatcher) chooseDate(ctx context.Context, s *session.Session, text string) (Outcome, error) {
	date, err := slot.ParseDate(text)
	if err != nil {
		return Outcome{Session: s, Reply: ReplyInvalidDate}, nil
	}

	available, err := d.slots.AvailableSlots(ctx, date)
	if err != nil {
		return Outcome{}, fmt.Errorf("available slots for %s: %w", date, err)
	}
	if len(available) == 0 {
		slog.Info("Dispatcher chooseDate fully booked", "identity", s.Identity, "date", date.String())
		return Outcome{Reply: ReplyFullyBooked}, nil
	}

	s.Date = date
	s.AvailableSlots = available
	s.Advance(session.StepChooseTime)
	return Outcome{Session: s, Reply: SlotMenu(available)}, nil
}

func (d *Dispatcher) chooseTime(s *session.Session, text string) Outcome {
	index, err := strconv.Atoi(text)
	if err != nil || index < 1 || index > len(s.AvailableSlots) {
		return Outcome{Session: s, Reply: ReplyInvalidTime}
	}
	s.Time = s.AvailableSlots[index-1]
	s.Advance(session.StepConfirm)
	return Outcome{Session: s, Reply: ConfirmationSummary(s.Service, s.Date, s.Time)}
}

func (d *Dispatcher) confirm(s *session.Session, text string) Outcome {
	if text != confirmYes {
		return Outcome{Session: s}
	}
	return Outcome{
		Session:  s,
		Finalize: &BookingDraft{Service: s.Service, Date: s.Date, Time: s.Time},
	}
}
