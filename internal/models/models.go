// Package models defines the core data structures for BookingPipe.
//
// It includes the inbound message type shared by the gateways and the booking
// record written to the record sink.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/BookingPipe/internal/slot"
)

// UnknownName is recorded when the sender did not publish a display name.
const UnknownName = "-"

// Error variables for better error handling and testability
var (
	ErrEmptyPhone   = errors.New("booking phone cannot be empty")
	ErrEmptyService = errors.New("booking service cannot be empty")
)

// Response represents an incoming message from a customer.
type Response struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Time      int64  `json:"time"`
	Name      string `json:"name,omitempty"`       // sender display name, if the gateway knows it
	MessageID string `json:"message_id,omitempty"` // gateway message id, used for read receipts
}

// DisplayName returns the sender name or UnknownName when none was provided.
func (r Response) DisplayName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	return UnknownName
}

// Booking is a confirmed appointment as written to the record sink.
type Booking struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Service   string    `json:"service"`
	Date      string    `json:"date"` // YYYY-MM-DD
	Time      string    `json:"time"` // HH:MM
	CreatedAt time.Time `json:"created_at"`
}

// NewBooking assigns an ID and creation timestamp to a booking.
func NewBooking(name, phone, service string, date slot.Date, at slot.Time, now time.Time) Booking {
	if strings.TrimSpace(name) == "" {
		name = UnknownName
	}
	return Booking{
		ID:        uuid.NewString(),
		Name:      name,
		Phone:     phone,
		Service:   service,
		Date:      date.String(),
		Time:      at.String(),
		CreatedAt: now.UTC(),
	}
}

// Validate checks that the booking carries every field the record sink needs.
func (b Booking) Validate() error {
	if b.Phone == "" {
		return ErrEmptyPhone
	}
	if b.Service == "" {
		return ErrEmptyService
	}
	if _, err := slot.ParseDate(b.Date); err != nil {
		return fmt.Errorf("booking date: %w", err)
	}
	if _, err := slot.ParseTime(b.Time); err != nil {
		return fmt.Errorf("booking time: %w", err)
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
