package session

import (
	"github.com/BTreeMap/BookingPipe/internal/slot"
)

// Session is the conversational state of one user between turns.
type Session struct {
	Identity string  `json:"identity"`
	Step     Step    `json:"step"`
	History  History `json:"history"`

	Service string    `json:"service,omitempty"`
	Date    slot.Date `json:"date"`
	Time    slot.Time `json:"time"`

	// AvailableSlots is the list offered at CHOOSE_TIME; a 1-based reply indexes into it.
	AvailableSlots []slot.Time `json:"available_slots,omitempty"`
}

// New returns a fresh session at the main menu.
func New(identity string) *Session {
	return &Session{Identity: identity, Step: StepMenu}
}

// Advance pushes the current step onto the history and moves to next.
func (s *Session) Advance(next Step) {
	s.History.Push(s.Step)
	s.Step = next
}

// Back returns to the previous step. Collected fields are kept.
func (s *Session) Back() Step {
	s.Step = s.History.Pop()
	return s.Step
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.AvailableSlots != nil {
		c.AvailableSlots = make([]slot.Time, len(s.AvailableSlots))
		copy(c.AvailableSlots, s.AvailableSlots)
	}
	return &c
}
