package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/BTreeMap/BookingPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite record sink with the given DSN.
// The DSN is a file path or a "file:" URI; the parent directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, ErrDSNNotSet
	}

	if path := sqliteFilePath(dsn); path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// sqliteFilePath extracts the filesystem path from a SQLite DSN, or "" for in-memory databases.
func sqliteFilePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

func (s *SQLiteStore) AppendBooking(ctx context.Context, b models.Booking) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid booking: %w", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookings (id, name, phone, service, booking_date, booking_time, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Phone, b.Service, b.Date, b.Time, b.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AppendBooking failed", "error", err, "phone", b.Phone)
		return fmt.Errorf("failed to insert booking for %s: %w", b.Phone, err)
	}
	slog.Debug("SQLiteStore AppendBooking succeeded", "id", b.ID, "date", b.Date, "time", b.Time)
	return nil
}

func (s *SQLiteStore) BookedTimes(ctx context.Context, date string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT booking_time FROM bookings WHERE booking_date = ?`, date)
	if err != nil {
		slog.Error("SQLiteStore BookedTimes query failed", "error", err, "date", date)
		return nil, fmt.Errorf("failed to query booked times for %s: %w", date, err)
	}
	return scanStrings(rows)
}

func (s *SQLiteStore) ListBookings(ctx context.Context, date string) ([]models.Booking, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if date == "" {
		rows, err = s.db.QueryContext(ctx, selectBookingColumns+` ORDER BY booking_date, booking_time, created_at`)
	} else {
		rows, err = s.db.QueryContext(ctx, selectBookingColumns+` WHERE booking_date = ? ORDER BY booking_time, created_at`, date)
	}
	if err != nil {
		slog.Error("SQLiteStore ListBookings query failed", "error", err, "date", date)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	return scanBookings(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		slog.Debug("Closing SQLite database connection")
		return s.db.Close()
	}
	return nil
}
