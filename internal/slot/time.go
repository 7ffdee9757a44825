// Package slot implements the clinic's bookable time grid and availability lookup.
package slot

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTime is returned when a value is not a strict HH:MM time of day.
	ErrInvalidTime = errors.New("invalid time of day")
	// ErrInvalidDate is returned when a value is not a strict YYYY-MM-DD calendar date.
	ErrInvalidDate = errors.New("invalid calendar date")
)

// Time is a wall-clock time of day with minute precision.
// The zero value means "unset" and is distinct from midnight.
type Time struct {
	minutes int
	valid   bool
}

// NewTime returns the time of day hour:minute.
func NewTime(hour, minute int) (Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Time{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidTime, hour, minute)
	}
	return Time{minutes: hour*60 + minute, valid: true}, nil
}

// MustTime is NewTime for constants; it panics on invalid input.
func MustTime(hour, minute int) Time {
	t, err := NewTime(hour, minute)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTime parses a strict two-digit "HH:MM" value.
func ParseTime(s string) (Time, error) {
	if len(s) != 5 || s[2] != ':' {
		return Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hour, ok1 := twoDigits(s[0:2])
	minute, ok2 := twoDigits(s[3:5])
	if !ok1 || !ok2 {
		return Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return NewTime(hour, minute)
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// Hour returns the hour component.
func (t Time) Hour() int { return t.minutes / 60 }

// Minute returns the minute component.
func (t Time) Minute() int { return t.minutes % 60 }

// IsZero reports whether t is unset.
func (t Time) IsZero() bool { return !t.valid }

// Add returns t shifted by d, truncated to whole minutes.
// The result wraps around midnight.
func (t Time) Add(d time.Duration) Time {
	m := (t.minutes + int(d/time.Minute)) % (24 * 60)
	if m < 0 {
		m += 24 * 60
	}
	return Time{minutes: m, valid: true}
}

// Compare returns -1, 0 or +1 following clock order. Unset sorts first.
func (t Time) Compare(u Time) int {
	switch {
	case t.valid != u.valid:
		if !t.valid {
			return -1
		}
		return 1
	case t.minutes < u.minutes:
		return -1
	case t.minutes > u.minutes:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is earlier than u.
func (t Time) Before(u Time) bool { return t.Compare(u) < 0 }

// Equal reports whether t and u are the same time of day.
func (t Time) Equal(u Time) bool { return t == u }

// String formats t as "HH:MM", or "" when unset.
func (t Time) String() string {
	if !t.valid {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// MarshalText implements encoding.TextMarshaler.
func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields the zero Time.
func (t *Time) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = Time{}
		return nil
	}
	parsed, err := ParseTime(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
