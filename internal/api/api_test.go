package api

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/messaging"
	"github.com/BTreeMap/BookingPipe/internal/notify"
	"github.com/BTreeMap/BookingPipe/internal/session"
	"github.com/BTreeMap/BookingPipe/internal/store"
	"github.com/BTreeMap/BookingPipe/internal/testutil"
	"github.com/BTreeMap/BookingPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/BookingPipe/internal/whatsapp"
)

func TestNewOptsDefaults(t *testing.T) {
	cfg := newOpts()
	assert.Equal(t, DefaultServerAddress, cfg.Addr)
	assert.Equal(t, "127.0.0.1:8081", cfg.AdminAddr)
	assert.Equal(t, GatewayWhatsApp, cfg.Gateway)
	assert.True(t, cfg.Humanize)
	assert.Equal(t, messaging.DefaultTypingDelayMin, cfg.TypingDelayMin)
	assert.Equal(t, messaging.DefaultTypingDelayMax, cfg.TypingDelayMax)

	cfg = newOpts(WithAddr(":9090"), WithAdminAddr("127.0.0.1:9091"), WithGateway(GatewayTwilio), WithHumanizedReplies(false, 0, 0), WithSessionTTL(time.Hour))
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "127.0.0.1:9091", cfg.AdminAddr)
	assert.Equal(t, GatewayTwilio, cfg.Gateway)
	assert.False(t, cfg.Humanize)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
}

func TestOpenSessionStore(t *testing.T) {
	ctx := context.Background()

	st, closeFn, err := openSessionStore(ctx, newOpts())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &session.MemoryStore{}, st)

	mr := miniredis.RunT(t)
	st, closeRedis, err := openSessionStore(ctx, newOpts(WithRedis(mr.Addr(), ""), WithSessionTTL(time.Hour)))
	require.NoError(t, err)
	defer closeRedis()
	require.IsType(t, &session.RedisStore{}, st)

	_, err = st.GetOrCreate(ctx, "6281234567890")
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)
	assert.Equal(t, time.Hour, mr.TTL(mr.Keys()[0]))
}

func TestOpenSessionStore_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := openSessionStore(context.Background(), newOpts(WithRedis(addr, "")))
	assert.Error(t, err)
}

func TestOpenGateway_Errors(t *testing.T) {
	_, err := openGateway(context.Background(), newOpts(WithGateway("telegram")), nil, nil)
	assert.ErrorContains(t, err, "unknown gateway")

	_, err = openGateway(context.Background(), newOpts(WithGateway(GatewayTwilio)), nil, nil)
	assert.ErrorIs(t, err, twiliowhatsapp.ErrMissingCredentials)
}

func TestOpenGateway_Twilio(t *testing.T) {
	gw, err := openGateway(context.Background(), newOpts(WithGateway(GatewayTwilio)), nil, []twiliowhatsapp.Option{
		twiliowhatsapp.WithAccountSID("AC123"),
		twiliowhatsapp.WithAuthToken("secret"),
		twiliowhatsapp.WithFromWhats("+14155238886"),
	})
	require.NoError(t, err)
	defer gw.close()
	assert.NotNil(t, gw.twilio)
	assert.Same(t, gw.twilio, gw.service)
}

func TestBuildNotifier(t *testing.T) {
	sender := whatsapp.NewMockClient()

	assert.IsType(t, notify.LogNotifier{}, buildNotifier(newOpts(), sender))

	n := buildNotifier(newOpts(WithAdminNumber("6281111111111")), sender)
	require.IsType(t, notify.Multi{}, n)
	require.NoError(t, n.Notify(context.Background(), "Booking baru"))
	msgs := sender.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "6281111111111", msgs[0].To)

	withEmail := buildNotifier(newOpts(
		WithAdminNumber("6281111111111"),
		WithEmailNotifications(notify.EmailConfig{APIKey: "SG.test", FromEmail: "bot@klinik.example", ToEmail: "admin@klinik.example"}),
	), sender)
	assert.Len(t, withEmail.(notify.Multi), 2)
}

func TestDedupFor(t *testing.T) {
	assert.IsType(t, &store.MemoryDedup{}, dedupFor(store.NewInMemoryStore()))

	sqlite, err := store.NewSQLiteStore(store.WithSQLiteDSN(":memory:"))
	require.NoError(t, err)
	defer sqlite.Close()
	assert.Same(t, sqlite, dedupFor(sqlite))
}

// TestServeEndToEnd drives a booking through the Twilio webhook against the real
// HTTP stack and checks the replies, the stored booking and the admin notice.
func TestServeEndToEnd(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	adminLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	twClient := twiliowhatsapp.NewMockClient()
	tw := messaging.NewTwilioService(twClient)
	gw := gateway{service: tw, twilio: tw, close: func() {}}
	bookings := store.NewInMemoryStore()
	sessions := session.NewMemoryStore()
	cfg := newOpts(
		WithGateway(GatewayTwilio),
		WithAdminNumber("6281111111111"),
		WithHumanizedReplies(false, 0, 0),
		WithMetricsRegistry(prometheus.NewRegistry()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, adminLn, cfg, gw, bookings, sessions) }()

	base := "http://" + ln.Addr().String()
	send := func(sid, body string) {
		form := url.Values{"From": {"whatsapp:+6281234567890"}, "Body": {body}, "MessageSid": {sid}}
		resp, err := http.Post(base+"/twilio/webhook", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	// Turns are sequenced by waiting for each reply before sending the next input.
	step := func(sid, body string, replies int) {
		send(sid, body)
		testutil.Eventually(t, 2*time.Second, func() bool { return len(twClient.Messages()) >= replies }, "reply to "+body)
	}

	step("SM1", "menu", 1)
	assert.Equal(t, flow.ReplyMainMenu, twClient.Messages()[0].Body)

	step("SM2", "1", 2)
	step("SM3", "3", 3)
	step("SM4", "2026-02-15", 4)
	assert.Contains(t, twClient.Messages()[3].Body, "1. 12:00")
	step("SM5", "1", 5)

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Booked reply to the customer plus the admin notice.
	step("SM6", "1", 7)

	resp, err = http.Get(base + "/bookings?date=2026-02-15")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "bookings must not be served publicly")
	resp, err = http.Get("http://" + adminLn.Addr().String() + "/bookings?date=2026-02-15")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	list, err := bookings.ListBookings(context.Background(), "2026-02-15")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "12:00", list[0].Time)
	assert.Equal(t, "6281234567890", list[0].Phone)

	var toCustomer, toAdmin int
	for _, m := range twClient.Messages() {
		switch m.To {
		case "6281234567890":
			toCustomer++
		case "6281111111111":
			toAdmin++
		}
	}
	assert.Equal(t, 6, toCustomer)
	assert.Equal(t, 1, toAdmin)

	// A redelivered webhook is dropped.
	send("SM6", "1")
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, twClient.Messages(), 7)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}
