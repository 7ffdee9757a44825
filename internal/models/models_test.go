package models

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/slot"
)

func TestResponseDisplayName(t *testing.T) {
	if got := (Response{From: "628111", Name: "  Sari "}).DisplayName(); got != "Sari" {
		t.Errorf("expected trimmed name, got %q", got)
	}
	if got := (Response{From: "628111"}).DisplayName(); got != UnknownName {
		t.Errorf("expected %q for missing name, got %q", UnknownName, got)
	}
}

func TestNewBooking(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.FixedZone("WIB", 7*3600))
	b := NewBooking("", "628111", "Implan", slot.NewDate(2026, 2, 15), slot.MustTime(12, 30), now)

	if b.ID == "" {
		t.Error("expected booking ID to be assigned")
	}
	if b.Name != UnknownName {
		t.Errorf("expected placeholder name, got %q", b.Name)
	}
	if b.Date != "2026-02-15" || b.Time != "12:30" {
		t.Errorf("unexpected date/time: %s %s", b.Date, b.Time)
	}
	if b.CreatedAt.Location() != time.UTC || !b.CreatedAt.Equal(now) {
		t.Errorf("expected UTC creation time, got %v", b.CreatedAt)
	}
	if err := b.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}

	other := NewBooking("Sari", "628111", "Implan", slot.NewDate(2026, 2, 15), slot.MustTime(12, 30), now)
	if other.ID == b.ID {
		t.Error("expected distinct booking IDs")
	}
}

func TestBookingValidate(t *testing.T) {
	valid := Booking{Phone: "628111", Service: "Implan", Date: "2026-02-15", Time: "12:00"}

	tests := []struct {
		name    string
		mutate  func(*Booking)
		wantErr error
	}{
		{"valid", func(*Booking) {}, nil},
		{"missing phone", func(b *Booking) { b.Phone = "" }, ErrEmptyPhone},
		{"missing service", func(b *Booking) { b.Service = "" }, ErrEmptyService},
		{"bad date", func(b *Booking) { b.Date = "15-02-2026" }, slot.ErrInvalidDate},
		{"bad time", func(b *Booking) { b.Time = "noon" }, slot.ErrInvalidTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid
			tt.mutate(&b)
			err := b.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	if r := Success(3); r.Status != "ok" || r.Result != 3 {
		t.Errorf("unexpected success response: %+v", r)
	}
	if r := Error("boom"); r.Status != "error" || r.Message != "boom" {
		t.Errorf("unexpected error response: %+v", r)
	}
	if r := SuccessWithMessage("done", nil); r.Message != "done" {
		t.Errorf("unexpected response: %+v", r)
	}
}
