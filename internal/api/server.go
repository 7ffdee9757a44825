package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/messaging"
	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/session"
	"github.com/BTreeMap/BookingPipe/internal/slot"
)

// BookingLister lists the bookings recorded for a date.
type BookingLister interface {
	ListBookings(ctx context.Context, date string) ([]models.Booking, error)
}

// Server serves the operations API.
type Server struct {
	slots    flow.SlotLister
	bookings BookingLister
	sessions session.Counter
	twilio   *messaging.TwilioService
	gateway  string
	gatherer prometheus.Gatherer
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSessionCounter reports the active session count on /health.
func WithSessionCounter(c session.Counter) ServerOption {
	return func(s *Server) { s.sessions = c }
}

// WithTwilioWebhook mounts the Twilio inbound webhook.
func WithTwilioWebhook(svc *messaging.TwilioService) ServerOption {
	return func(s *Server) { s.twilio = svc }
}

// WithGatewayName is reported on /health.
func WithGatewayName(name string) ServerOption {
	return func(s *Server) { s.gateway = name }
}

// WithGatherer sets the registry served on /metrics (the default gatherer when unset).
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a Server.
func NewServer(slots flow.SlotLister, bookings BookingLister, opts ...ServerOption) *Server {
	s := &Server{
		slots:    slots,
		bookings: bookings,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the public router: health and, for the Twilio gateway, the
// inbound webhook. It exposes no booking data.
func (s *Server) Routes() http.Handler {
	r := newRouter()
	r.Get("/health", s.healthHandler)
	if s.twilio != nil {
		r.Post("/twilio/webhook", s.twilio.TwilioWebhookHandler)
	}
	return r
}

// AdminRoutes builds the operator router, which lists customer bookings and
// must only be reachable from trusted networks.
func (s *Server) AdminRoutes() http.Handler {
	r := newRouter()
	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/slots/{date}", s.slotsHandler)
	r.Get("/bookings", s.bookingsHandler)
	return r
}

func newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	return r
}

// HealthStatus is the /health payload.
type HealthStatus struct {
	Gateway  string `json:"gateway,omitempty"`
	Sessions *int   `json:"sessions,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{Gateway: s.gateway}
	if s.sessions != nil {
		n, err := s.sessions.Count(r.Context())
		if err != nil {
			slog.Error("Server healthHandler session count failed", "error", err)
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Session store unavailable"))
			return
		}
		status.Sessions = &n
	}
	writeJSONResponse(w, http.StatusOK, models.Success(status))
}

// SlotsResponse lists the free times for a date.
type SlotsResponse struct {
	Date      string   `json:"date"`
	Available []string `json:"available"`
}

func (s *Server) slotsHandler(w http.ResponseWriter, r *http.Request) {
	date, err := slot.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid date, expected YYYY-MM-DD"))
		return
	}

	times, err := s.slots.AvailableSlots(r.Context(), date)
	if err != nil {
		slog.Error("Server slotsHandler availability query failed", "date", date.String(), "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to query available slots"))
		return
	}

	available := make([]string, len(times))
	for i, t := range times {
		available[i] = t.String()
	}
	writeJSONResponse(w, http.StatusOK, models.Success(SlotsResponse{Date: date.String(), Available: available}))
}

func (s *Server) bookingsHandler(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required query parameter: date"))
		return
	}
	date, err := slot.ParseDate(raw)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid date, expected YYYY-MM-DD"))
		return
	}

	bookings, err := s.bookings.ListBookings(r.Context(), date.String())
	if err != nil {
		slog.Error("Server bookingsHandler list failed", "date", date.String(), "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list bookings"))
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(bookings))
}
