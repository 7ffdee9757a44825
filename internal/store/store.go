// Package store provides record sink backends for BookingPipe.
//
// A record sink is the append-only log of confirmed bookings. It is also the
// source of truth for which times are already taken on a given date.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// ErrDSNNotSet is returned when a SQL backend is constructed without a DSN.
var ErrDSNNotSet = errors.New("database DSN not set")

// BookingStore is the record sink: confirmed bookings are appended, never updated.
type BookingStore interface {
	// AppendBooking persists a confirmed booking.
	AppendBooking(ctx context.Context, b models.Booking) error
	// BookedTimes returns the stored times ("HH:MM") of every booking on date ("YYYY-MM-DD").
	BookedTimes(ctx context.Context, date string) ([]string, error)
	// ListBookings returns every booking on date, or all bookings when date is empty.
	ListBookings(ctx context.Context, date string) ([]models.Booking, error)
	// Close releases the backend's resources.
	Close() error
}

// Compile-time checks that every backend implements BookingStore.
var (
	_ BookingStore = (*InMemoryStore)(nil)
	_ BookingStore = (*SQLiteStore)(nil)
	_ BookingStore = (*PostgresStore)(nil)
	_ BookingStore = (*SheetsStore)(nil)
)

// InMemoryStore is a simple in-memory record sink, used when no database is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	bookings []models.Booking
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AppendBooking(ctx context.Context, b models.Booking) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid booking: %w", err)
	}
	s.mu.Lock()
	s.bookings = append(s.bookings, b)
	s.mu.Unlock()
	slog.Debug("InMemoryStore AppendBooking succeeded", "id", b.ID, "date", b.Date, "time", b.Time)
	return nil
}

func (s *InMemoryStore) BookedTimes(ctx context.Context, date string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var times []string
	for _, b := range s.bookings {
		if b.Date == date {
			times = append(times, b.Time)
		}
	}
	return times, nil
}

func (s *InMemoryStore) ListBookings(ctx context.Context, date string) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if date == "" || b.Date == date {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

// sortBookings orders bookings by date, then time, then creation.
func sortBookings(bs []models.Booking) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Date != bs[j].Date {
			return bs[i].Date < bs[j].Date
		}
		if bs[i].Time != bs[j].Time {
			return bs[i].Time < bs[j].Time
		}
		return bs[i].CreatedAt.Before(bs[j].CreatedAt)
	})
}
