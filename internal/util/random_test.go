package util

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantLength int
	}{
		{name: "twilio fallback id", prefix: "tw_", hexLength: 24, wantLength: 27},
		{name: "custom prefix", prefix: "test_", hexLength: 16, wantLength: 21},
		{name: "no hex", prefix: "x", hexLength: 0, wantLength: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("GenerateRandomID() = %v, want prefix %v", got, tt.prefix)
			}
			if len(got) != tt.wantLength {
				t.Errorf("GenerateRandomID() length = %v, want %v", len(got), tt.wantLength)
			}
			if hexPart := got[len(tt.prefix):]; !isValidHex(hexPart) {
				t.Errorf("GenerateRandomID() hex part = %v is not valid hex", hexPart)
			}
		})
	}
}

func TestGenerateRandomHexUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateRandomHex(32)
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestRandomDuration(t *testing.T) {
	min, max := 1500*time.Millisecond, 3500*time.Millisecond
	for i := 0; i < 500; i++ {
		d := RandomDuration(min, max)
		if d < min || d > max {
			t.Fatalf("RandomDuration() = %v, want within [%v, %v]", d, min, max)
		}
	}

	if got := RandomDuration(2*time.Second, time.Second); got != 2*time.Second {
		t.Errorf("RandomDuration() with inverted bounds = %v, want min", got)
	}
	if got := RandomDuration(0, 0); got != 0 {
		t.Errorf("RandomDuration(0, 0) = %v, want 0", got)
	}
}

func isValidHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}
