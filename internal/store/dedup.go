package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultDedupRetention is how long a message ID is remembered before pruning.
const DefaultDedupRetention = 24 * time.Hour

// DedupRepo records inbound gateway message IDs so redelivered messages are not
// processed twice.
type DedupRepo interface {
	// RecordInbound records a message ID. It returns false if the ID was
	// already recorded (duplicate).
	RecordInbound(ctx context.Context, messageID, sender string) (bool, error)

	// MarkProcessed sets the processed timestamp for a message.
	MarkProcessed(ctx context.Context, messageID string) error
}

// Compile-time checks that the dedup backends implement DedupRepo.
var (
	_ DedupRepo = (*MemoryDedup)(nil)
	_ DedupRepo = (*SQLiteStore)(nil)
	_ DedupRepo = (*PostgresStore)(nil)
)

// MemoryDedup is a DedupRepo for record sinks without a database.
type MemoryDedup struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemoryDedup creates a MemoryDedup that forgets IDs after retention (default 24h).
func NewMemoryDedup(retention time.Duration) *MemoryDedup {
	if retention <= 0 {
		retention = DefaultDedupRetention
	}
	return &MemoryDedup{seen: make(map[string]time.Time), retention: retention, now: time.Now}
}

func (m *MemoryDedup) RecordInbound(ctx context.Context, messageID, sender string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, at := range m.seen {
		if now.Sub(at) > m.retention {
			delete(m.seen, id)
		}
	}
	if _, ok := m.seen[messageID]; ok {
		return false, nil
	}
	m.seen[messageID] = now
	return true, nil
}

func (m *MemoryDedup) MarkProcessed(ctx context.Context, messageID string) error { return nil }

// RecordInbound prunes IDs older than DefaultDedupRetention, then records messageID.
func (s *SQLiteStore) RecordInbound(ctx context.Context, messageID, sender string) (bool, error) {
	now := time.Now().UTC()
	pruneDedup(ctx, s.db, `DELETE FROM inbound_dedup WHERE received_at < ?`, now.Add(-DefaultDedupRetention))
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO inbound_dedup (message_id, sender, received_at) VALUES (?, ?, ?)`,
		messageID, sender, now)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	return insertedRow(result)
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`,
		time.Now(), messageID); err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

// RecordInbound prunes IDs older than DefaultDedupRetention, then records messageID.
func (s *PostgresStore) RecordInbound(ctx context.Context, messageID, sender string) (bool, error) {
	now := time.Now().UTC()
	pruneDedup(ctx, s.db, `DELETE FROM inbound_dedup WHERE received_at < $1`, now.Add(-DefaultDedupRetention))
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_dedup (message_id, sender, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
		messageID, sender, now)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	return insertedRow(result)
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`,
		time.Now(), messageID); err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

// pruneDedup deletes expired IDs. A failure only delays pruning, so it is logged.
func pruneDedup(ctx context.Context, db *sql.DB, query string, cutoff time.Time) {
	result, err := db.ExecContext(ctx, query, cutoff)
	if err != nil {
		slog.Warn("Store pruneDedup failed", "error", err)
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		slog.Debug("Store pruneDedup removed expired message ids", "count", n)
	}
}

func insertedRow(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}
