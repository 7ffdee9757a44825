package whatsapp

import (
	"context"
	"errors"
	"testing"

	"go.mau.fi/whatsmeow/types"
)

func TestParseRecipient(t *testing.T) {
	tests := []struct {
		name    string
		to      string
		want    string
		wantErr bool
	}{
		{name: "bare number", to: "628123456789", want: "628123456789@s.whatsapp.net"},
		{name: "plus prefixed", to: "+628123456789", want: "628123456789@s.whatsapp.net"},
		{name: "full user JID", to: "628123456789@s.whatsapp.net", want: "628123456789@s.whatsapp.net"},
		{name: "hidden user JID", to: "123456789@lid", want: "123456789@lid"},
		{name: "empty", to: "  ", wantErr: true},
		{name: "letters", to: "klinik", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jid, err := ParseRecipient(tt.to)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.to)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if jid.String() != tt.want {
				t.Errorf("ParseRecipient(%q) = %s, want %s", tt.to, jid, tt.want)
			}
		})
	}

	if _, err := ParseRecipient(""); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
}

func TestIdentityFromJID(t *testing.T) {
	if got := IdentityFromJID(types.NewJID("628123", JIDSuffix)); got != "628123" {
		t.Errorf("expected bare number, got %q", got)
	}
	if got := IdentityFromJID(types.NewJID("98765", types.HiddenUserServer)); got != "98765@lid" {
		t.Errorf("expected full JID for hidden users, got %q", got)
	}

	// Identities round-trip into recipients.
	for _, jid := range []types.JID{types.NewJID("628123", JIDSuffix), types.NewJID("98765", types.HiddenUserServer)} {
		back, err := ParseRecipient(IdentityFromJID(jid))
		if err != nil || back != jid {
			t.Errorf("round trip of %s gave %s, %v", jid, back, err)
		}
	}
}

func TestHasForeignKeys(t *testing.T) {
	tests := map[string]bool{
		"/tmp/test.db":                       false,
		"file:/tmp/test.db?_foreign_keys=on": true,
		"/tmp/test.db?foreign_keys=on":       true,
	}
	for dsn, want := range tests {
		if got := HasForeignKeys(dsn); got != want {
			t.Errorf("HasForeignKeys(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func TestOptions(t *testing.T) {
	opts := &Opts{}
	WithDBDSN("/var/lib/bookingpipe/test.db")(opts)
	WithQRCodeOutput("/tmp/qr.txt")(opts)
	WithNumericCode()(opts)
	WithLogLevel("debug")(opts)

	if opts.DBDSN != "/var/lib/bookingpipe/test.db" || opts.QRPath != "/tmp/qr.txt" || !opts.NumericCode || opts.LogLevel != "DEBUG" {
		t.Errorf("options not applied: %+v", opts)
	}
}

func TestClientRequiresInitialization(t *testing.T) {
	c := &Client{}
	ctx := context.Background()
	if err := c.SendMessage(ctx, "628123", "hi"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	if err := c.MarkRead(ctx, "628123", "ABC"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	if err := c.SendTyping(ctx, "628123", true); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	ctx := context.Background()
	var _ WhatsAppSender = m
	var _ PresenceSender = m

	if err := m.SendMessage(ctx, "628123", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.MarkRead(ctx, "628123", "MSG1")
	m.SendTyping(ctx, "628123", true)

	msgs := m.Messages()
	if len(msgs) != 1 || msgs[0].To != "628123" || msgs[0].Body != "hello" {
		t.Errorf("unexpected captured messages: %+v", msgs)
	}
	if len(m.Reads) != 1 || len(m.Typing) != 1 {
		t.Errorf("expected presence calls to be captured")
	}

	m.SendErr = errors.New("offline")
	if err := m.SendMessage(ctx, "628123", "x"); err == nil {
		t.Error("expected configured send error")
	}
}
