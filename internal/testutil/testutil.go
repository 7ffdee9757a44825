// Package testutil provides common test helpers for BookingPipe packages.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/slot"
	"github.com/BTreeMap/BookingPipe/internal/store"
)

// AssertJSONResponse decodes an APIResponse body and checks its status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if response.Status != expectedStatus {
		t.Errorf("expected status '%s', got '%s' (message %q)", expectedStatus, response.Status, response.Message)
	}
	return response
}

// DecodeResult re-decodes the Result of an APIResponse into target.
func DecodeResult(t *testing.T, response models.APIResponse, target interface{}) {
	t.Helper()
	MustUnmarshalJSON(t, MustMarshalJSON(t, response.Result), target)
}

// SeedBookings appends one booking per time on date.
func SeedBookings(t *testing.T, st store.BookingStore, date string, times ...string) {
	t.Helper()
	d, err := slot.ParseDate(date)
	if err != nil {
		t.Fatalf("invalid seed date %q: %v", date, err)
	}
	for i, raw := range times {
		at, err := slot.ParseTime(raw)
		if err != nil {
			t.Fatalf("invalid seed time %q: %v", raw, err)
		}
		b := models.NewBooking("Seed", fmt.Sprintf("6280000000%02d", i), "Scaling", d, at, time.Now())
		if err := st.AppendBooking(context.Background(), b); err != nil {
			t.Fatalf("failed to seed booking: %v", err)
		}
	}
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v: %s", timeout, msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// MustMarshalJSON marshals v to JSON and fails the test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails the test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
