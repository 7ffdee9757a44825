package store

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/api/option"
)

// DefaultSheetsRange is the range bookings are appended to when none is configured.
const DefaultSheetsRange = "Sheet1!A:F"

// Opts holds configuration for the record sink backends.
type Opts struct {
	DSN        string // database connection string
	DriverName string // "sqlite3" or "postgres"

	SheetsSpreadsheetID string
	SheetsRange         string
	SheetsClientOptions []option.ClientOption
}

// Option defines a configuration option for the record sink.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend at the given DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.DriverName = "sqlite3"
	}
}

// WithPostgresDSN selects the Postgres backend at the given DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.DriverName = "postgres"
	}
}

// WithSheets selects the Google Sheets backend. Client options carry credentials
// (option.WithCredentialsFile) or, in tests, a fake endpoint.
func WithSheets(spreadsheetID, rng string, clientOpts ...option.ClientOption) Option {
	return func(o *Opts) {
		o.SheetsSpreadsheetID = spreadsheetID
		o.SheetsRange = rng
		o.SheetsClientOptions = append(o.SheetsClientOptions, clientOpts...)
	}
}

// DetectDSNType returns "postgres" for Postgres URLs or key=value DSNs, otherwise "sqlite3".
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "user="):
		return "postgres"
	default:
		return "sqlite3"
	}
}

// Open builds the configured record sink. Backends are chosen in order:
// Google Sheets, Postgres, SQLite, then in-memory.
func Open(ctx context.Context, opts ...Option) (BookingStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case cfg.SheetsSpreadsheetID != "":
		slog.Info("Record sink selected", "backend", "sheets")
		return NewSheetsStore(ctx, opts...)
	case cfg.DSN != "" && cfg.DriverName == "postgres":
		slog.Info("Record sink selected", "backend", "postgres")
		return NewPostgresStore(opts...)
	case cfg.DSN != "":
		slog.Info("Record sink selected", "backend", "sqlite3")
		return NewSQLiteStore(opts...)
	default:
		slog.Warn("Record sink selected", "backend", "memory", "reason", "no DSN or spreadsheet configured")
		return NewInMemoryStore(), nil
	}
}
