package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/sheets/v4"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// Rows are written as: Nama, NoHP, Layanan, Tanggal, Jam, Timestamp.
const dateHeader = "Tanggal"

// sheetsTimestampLayout mirrors an ISO-8601 UTC timestamp with milliseconds.
const sheetsTimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// SheetsStore is a record sink backed by a Google Sheets range. Each booking is
// one appended row; queries read the whole range and filter client-side.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	rng           string
}

// NewSheetsStore connects to the Sheets API with the configured client options.
func NewSheetsStore(ctx context.Context, opts ...Option) (*SheetsStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SheetsSpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID not set")
	}
	rng := cfg.SheetsRange
	if rng == "" {
		rng = DefaultSheetsRange
	}

	svc, err := sheets.NewService(ctx, cfg.SheetsClientOptions...)
	if err != nil {
		slog.Error("SheetsStore client creation failed", "error", err)
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	slog.Debug("SheetsStore created", "spreadsheetID", cfg.SheetsSpreadsheetID, "range", rng)
	return &SheetsStore{svc: svc, spreadsheetID: cfg.SheetsSpreadsheetID, rng: rng}, nil
}

func (s *SheetsStore) AppendBooking(ctx context.Context, b models.Booking) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid booking: %w", err)
	}
	row := []interface{}{b.Name, b.Phone, b.Service, b.Date, b.Time, b.CreatedAt.UTC().Format(sheetsTimestampLayout)}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rng, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		slog.Error("SheetsStore AppendBooking failed", "error", err, "phone", b.Phone)
		return fmt.Errorf("failed to append booking row for %s: %w", b.Phone, err)
	}
	slog.Debug("SheetsStore AppendBooking succeeded", "date", b.Date, "time", b.Time)
	return nil
}

func (s *SheetsStore) BookedTimes(ctx context.Context, date string) ([]string, error) {
	rows, cols, err := s.readRows(ctx)
	if err != nil {
		return nil, err
	}
	var times []string
	for _, row := range rows {
		if cell(row, cols.date) == date {
			times = append(times, cell(row, cols.time))
		}
	}
	return times, nil
}

func (s *SheetsStore) ListBookings(ctx context.Context, date string) ([]models.Booking, error) {
	rows, cols, err := s.readRows(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Booking
	for i, row := range rows {
		b := models.Booking{
			ID:      fmt.Sprintf("row-%d", i+cols.firstRow),
			Name:    cell(row, cols.name),
			Phone:   cell(row, cols.phone),
			Service: cell(row, cols.service),
			Date:    cell(row, cols.date),
			Time:    cell(row, cols.time),
		}
		if date != "" && b.Date != date {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, cell(row, cols.timestamp)); err == nil {
			b.CreatedAt = ts
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (s *SheetsStore) Close() error { return nil }

type sheetColumns struct {
	name, phone, service, date, time, timestamp int
	firstRow                                    int // 1-based sheet row of the first data row
}

// readRows fetches the range and locates columns by header when a header row exists.
func (s *SheetsStore) readRows(ctx context.Context) ([][]interface{}, sheetColumns, error) {
	cols := sheetColumns{name: 0, phone: 1, service: 2, date: 3, time: 4, timestamp: 5, firstRow: 1}
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rng).Context(ctx).Do()
	if err != nil {
		slog.Error("SheetsStore read failed", "error", err)
		return nil, cols, fmt.Errorf("failed to read sheet range %s: %w", s.rng, err)
	}
	rows := resp.Values
	if len(rows) > 0 && isHeader(rows[0]) {
		for i := range rows[0] {
			switch cell(rows[0], i) {
			case "Nama":
				cols.name = i
			case "NoHP":
				cols.phone = i
			case "Layanan":
				cols.service = i
			case dateHeader:
				cols.date = i
			case "Jam":
				cols.time = i
			case "Timestamp":
				cols.timestamp = i
			}
		}
		rows = rows[1:]
		cols.firstRow = 2
	}
	return rows, cols, nil
}

func isHeader(row []interface{}) bool {
	for i := range row {
		if cell(row, i) == dateHeader {
			return true
		}
	}
	return false
}

func cell(row []interface{}, i int) string {
	if i < 0 || i >= len(row) || row[i] == nil {
		return ""
	}
	return fmt.Sprint(row[i])
}
