package slot

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Grid bounds. LastSlot is the final bookable start time; the advertised
// opening hours run until 19.30.
var (
	OpeningTime = MustTime(12, 0)
	LastSlot    = MustTime(19, 0)
)

// Interval is the spacing between consecutive slots.
const Interval = 30 * time.Minute

// Generate returns every bookable start time from OpeningTime through LastSlot inclusive.
func Generate() []Time {
	var slots []Time
	for t := OpeningTime; !LastSlot.Before(t); t = t.Add(Interval) {
		slots = append(slots, t)
	}
	return slots
}

// BookedTimesSource is the query half of the booking record sink.
// It returns the stored time values of every booking whose date string equals date.
type BookedTimesSource interface {
	BookedTimes(ctx context.Context, date string) ([]string, error)
}

// Engine computes slot availability against persisted bookings.
type Engine struct {
	source BookedTimesSource
}

// NewEngine creates an Engine backed by source.
func NewEngine(source BookedTimesSource) *Engine {
	return &Engine{source: source}
}

// BookedSlots returns the times already reserved on date.
// Stored values that are not valid HH:MM times are skipped.
func (e *Engine) BookedSlots(ctx context.Context, date Date) ([]Time, error) {
	raw, err := e.source.BookedTimes(ctx, date.String())
	if err != nil {
		slog.Error("SlotEngine BookedSlots query failed", "error", err, "date", date.String())
		return nil, fmt.Errorf("failed to query booked slots for %s: %w", date, err)
	}

	booked := make([]Time, 0, len(raw))
	for _, s := range raw {
		t, err := ParseTime(s)
		if err != nil {
			slog.Warn("SlotEngine ignoring unparseable booked time", "date", date.String(), "value", s)
			continue
		}
		booked = append(booked, t)
	}
	slog.Debug("SlotEngine BookedSlots", "date", date.String(), "count", len(booked))
	return booked, nil
}

// AvailableSlots returns the generated slots not yet booked on date, in grid order.
// Nothing is reserved: two callers may both see the same slot as free.
func (e *Engine) AvailableSlots(ctx context.Context, date Date) ([]Time, error) {
	booked, err := e.BookedSlots(ctx, date)
	if err != nil {
		return nil, err
	}
	return Subtract(Generate(), booked), nil
}

// Subtract returns the elements of all that do not appear in taken, preserving order.
func Subtract(all, taken []Time) []Time {
	takenSet := make(map[Time]struct{}, len(taken))
	for _, t := range taken {
		takenSet[t] = struct{}{}
	}
	out := make([]Time, 0, len(all))
	for _, t := range all {
		if _, ok := takenSet[t]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}
