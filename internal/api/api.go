// Package api bootstraps BookingPipe: it opens the record sink, the session
// store and the chat gateway, wires the booking conversation between them and
// serves the operations HTTP API until the process is signalled.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/messaging"
	"github.com/BTreeMap/BookingPipe/internal/metrics"
	"github.com/BTreeMap/BookingPipe/internal/notify"
	"github.com/BTreeMap/BookingPipe/internal/session"
	"github.com/BTreeMap/BookingPipe/internal/slot"
	"github.com/BTreeMap/BookingPipe/internal/store"
	"github.com/BTreeMap/BookingPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/BookingPipe/internal/whatsapp"
)

// Default server configuration
const (
	DefaultServerAddress     = ":8080"
	DefaultAdminAddress      = "127.0.0.1:8081"
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
)

// Supported gateways.
const (
	GatewayWhatsApp = "whatsapp"
	GatewayTwilio   = "twilio"
)

// Opts holds configuration options for the API server and the conversation wiring.
type Opts struct {
	Addr             string
	AdminAddr        string
	Gateway          string
	AdminNumber      string
	RedisAddr        string
	RedisPassword    string
	SessionTTL       time.Duration
	Email            notify.EmailConfig
	Humanize         bool
	TypingDelayMin   time.Duration
	TypingDelayMax   time.Duration
	TwilioWebhookURL string
	Registry         *prometheus.Registry // nil uses the default registry
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAdminAddr sets the listen address of the operator API (bookings, slots,
// metrics).
func WithAdminAddr(addr string) Option {
	return func(o *Opts) { o.AdminAddr = addr }
}

// WithGateway selects the chat gateway (GatewayWhatsApp or GatewayTwilio).
func WithGateway(name string) Option {
	return func(o *Opts) { o.Gateway = name }
}

// WithAdminNumber sends new-booking notices to this chat number.
func WithAdminNumber(number string) Option {
	return func(o *Opts) { o.AdminNumber = number }
}

// WithRedis keeps sessions in Redis instead of process memory.
func WithRedis(addr, password string) Option {
	return func(o *Opts) {
		o.RedisAddr = addr
		o.RedisPassword = password
	}
}

// WithSessionTTL expires idle Redis sessions.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// WithEmailNotifications also e-mails new-booking notices through SendGrid.
func WithEmailNotifications(cfg notify.EmailConfig) Option {
	return func(o *Opts) { o.Email = cfg }
}

// WithHumanizedReplies configures read receipts, typing indicator and reply delay.
func WithHumanizedReplies(enabled bool, min, max time.Duration) Option {
	return func(o *Opts) {
		o.Humanize = enabled
		o.TypingDelayMin = min
		o.TypingDelayMax = max
	}
}

// WithTwilioWebhookURL enables signature validation of Twilio webhooks
// against this public URL.
func WithTwilioWebhookURL(url string) Option {
	return func(o *Opts) { o.TwilioWebhookURL = url }
}

// WithMetricsRegistry registers and serves metrics from reg.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *Opts) { o.Registry = reg }
}

func newOpts(opts ...Option) Opts {
	cfg := Opts{
		Addr:           DefaultServerAddress,
		AdminAddr:      DefaultAdminAddress,
		Gateway:        GatewayWhatsApp,
		Humanize:       true,
		TypingDelayMin: messaging.DefaultTypingDelayMin,
		TypingDelayMax: messaging.DefaultTypingDelayMax,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// gateway is an opened chat transport.
type gateway struct {
	service messaging.Service
	twilio  *messaging.TwilioService // set when inbound traffic arrives by webhook
	close   func()
}

// Run starts BookingPipe and blocks until SIGINT or SIGTERM.
func Run(waOpts []whatsapp.Option, twOpts []twiliowhatsapp.Option, storeOpts []store.Option, apiOpts []Option) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := newOpts(apiOpts...)
	slog.Debug("API Run configuration", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "gateway", cfg.Gateway, "redis_set", cfg.RedisAddr != "", "humanize", cfg.Humanize)

	bookings, err := store.Open(ctx, storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open record sink: %w", err)
	}
	defer bookings.Close()

	sessions, closeSessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	gw, err := openGateway(ctx, cfg, waOpts, twOpts)
	if err != nil {
		return err
	}
	defer gw.close()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	adminLn, err := net.Listen("tcp", cfg.AdminAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to listen on %s: %w", cfg.AdminAddr, err)
	}
	return serve(ctx, ln, adminLn, cfg, gw, bookings, sessions)
}

// openSessionStore returns the Redis store when configured, otherwise process memory.
func openSessionStore(ctx context.Context, cfg Opts) (session.Store, func(), error) {
	if cfg.RedisAddr == "" {
		slog.Info("Session store selected", "backend", "memory")
		return session.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	var opts []session.RedisOption
	if cfg.SessionTTL > 0 {
		opts = append(opts, session.WithTTL(cfg.SessionTTL))
	}
	slog.Info("Session store selected", "backend", "redis", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
	return session.NewRedisStore(client, opts...), func() { client.Close() }, nil
}

// openGateway connects the configured chat transport.
func openGateway(ctx context.Context, cfg Opts, waOpts []whatsapp.Option, twOpts []twiliowhatsapp.Option) (gateway, error) {
	switch cfg.Gateway {
	case GatewayTwilio:
		client, err := twiliowhatsapp.NewClient(twOpts...)
		if err != nil {
			return gateway{}, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		var opts []messaging.TwilioOption
		if cfg.TwilioWebhookURL != "" {
			opts = append(opts, messaging.WithWebhookValidation(client, cfg.TwilioWebhookURL))
		} else {
			slog.Warn("Twilio webhook signature validation disabled; set TWILIO_WEBHOOK_URL to enable it")
		}
		svc := messaging.NewTwilioService(client, opts...)
		return gateway{service: svc, twilio: svc, close: func() {}}, nil

	case GatewayWhatsApp, "":
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return gateway{}, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return gateway{service: messaging.NewWhatsAppService(client), close: client.Disconnect}, nil

	default:
		return gateway{}, fmt.Errorf("unknown gateway %q (expected %q or %q)", cfg.Gateway, GatewayWhatsApp, GatewayTwilio)
	}
}

// buildNotifier assembles the admin notification channels.
func buildNotifier(cfg Opts, sender notify.MessageSender) notify.Notifier {
	var notifiers notify.Multi
	if cfg.AdminNumber != "" {
		notifiers = append(notifiers, notify.NewMessageNotifier(sender, cfg.AdminNumber))
	}
	if email := notify.NewEmailNotifier(cfg.Email); email != nil {
		notifiers = append(notifiers, email)
	}
	if len(notifiers) == 0 {
		slog.Warn("No admin notification channel configured; bookings will only be logged")
		return notify.LogNotifier{}
	}
	return notifiers
}

// dedupFor reuses the record sink's database for inbound deduplication when it has one.
func dedupFor(bookings store.BookingStore) store.DedupRepo {
	if repo, ok := bookings.(store.DedupRepo); ok {
		return repo
	}
	return store.NewMemoryDedup(store.DefaultDedupRetention)
}

// serve wires the conversation to gw and serves the public API on ln and the
// operator API on adminLn until ctx is done.
func serve(ctx context.Context, ln, adminLn net.Listener, cfg Opts, gw gateway, bookings store.BookingStore, sessions session.Store) error {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if cfg.Registry != nil {
		registerer, gatherer = cfg.Registry, cfg.Registry
	}
	m := metrics.New(registerer)

	engine := slot.NewEngine(bookings)
	conv := flow.NewConversation(flow.NewDispatcher(nil, engine), sessions, bookings,
		flow.WithNotifier(buildNotifier(cfg, gw.service)),
		flow.WithMetrics(m))

	rh := messaging.NewResponseHandler(gw.service, conv,
		messaging.WithDedup(dedupFor(bookings)),
		messaging.WithHandlerMetrics(m),
		messaging.WithFailureReply(flow.ReplyTemporaryFailure),
		messaging.WithHumanizedDelivery(cfg.Humanize),
		messaging.WithTypingDelay(cfg.TypingDelayMin, cfg.TypingDelayMax))

	if err := gw.service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	rh.Start(ctx)

	srvOpts := []ServerOption{WithGatewayName(cfg.Gateway), WithGatherer(gatherer)}
	if counter, ok := sessions.(session.Counter); ok {
		srvOpts = append(srvOpts, WithSessionCounter(counter))
	}
	if gw.twilio != nil {
		srvOpts = append(srvOpts, WithTwilioWebhook(gw.twilio))
	}
	srv := NewServer(engine, bookings, srvOpts...)
	httpServer := &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	adminServer := &http.Server{
		Handler:           srv.AdminRoutes(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	go func() {
		errCh <- adminServer.Serve(adminLn)
	}()
	slog.Info("BookingPipe API listening", "addr", ln.Addr().String(), "admin_addr", adminLn.Addr().String(), "gateway", cfg.Gateway)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("BookingPipe shutting down", "reason", ctx.Err())
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("API server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("API server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Admin API server shutdown failed", "error", err)
	}
	if err := gw.service.Stop(); err != nil {
		slog.Error("Messaging service stop failed", "error", err)
	}
	rh.Wait()
	conv.Wait()
	slog.Info("BookingPipe stopped")
	return runErr
}
