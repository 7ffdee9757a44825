package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

const selectBookingColumns = `SELECT id, name, phone, service, booking_date, booking_time, created_at FROM bookings`

// scanBookings drains rows produced by a selectBookingColumns query.
func scanBookings(rows *sql.Rows) ([]models.Booking, error) {
	defer rows.Close()
	var out []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.Name, &b.Phone, &b.Service, &b.Date, &b.Time, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking failed: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking rows failed: %w", err)
	}
	return out, nil
}

// scanStrings drains a single-column string result.
func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan row failed: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows failed: %w", err)
	}
	return out, nil
}
