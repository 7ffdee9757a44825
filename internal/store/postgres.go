package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/BookingPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres record sink based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, ErrDSNNotSet
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}

	s, err := NewPostgresStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an open connection pool and applies migrations.
func NewPostgresStoreFromDB(db *sql.DB) (*PostgresStore, error) {
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AppendBooking(ctx context.Context, b models.Booking) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid booking: %w", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookings (id, name, phone, service, booking_date, booking_time, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.Name, b.Phone, b.Service, b.Date, b.Time, b.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AppendBooking failed", "error", err, "phone", b.Phone)
		return fmt.Errorf("failed to insert booking for %s: %w", b.Phone, err)
	}
	slog.Debug("PostgresStore AppendBooking succeeded", "id", b.ID, "date", b.Date, "time", b.Time)
	return nil
}

func (s *PostgresStore) BookedTimes(ctx context.Context, date string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT booking_time FROM bookings WHERE booking_date = $1`, date)
	if err != nil {
		slog.Error("PostgresStore BookedTimes query failed", "error", err, "date", date)
		return nil, fmt.Errorf("failed to query booked times for %s: %w", date, err)
	}
	return scanStrings(rows)
}

func (s *PostgresStore) ListBookings(ctx context.Context, date string) ([]models.Booking, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if date == "" {
		rows, err = s.db.QueryContext(ctx, selectBookingColumns+` ORDER BY booking_date, booking_time, created_at`)
	} else {
		rows, err = s.db.QueryContext(ctx, selectBookingColumns+` WHERE booking_date = $1 ORDER BY booking_time, created_at`, date)
	}
	if err != nil {
		slog.Error("PostgresStore ListBookings query failed", "error", err, "date", date)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	return scanBookings(rows)
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
