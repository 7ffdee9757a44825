package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func exerciseDedupRepo(t *testing.T, d DedupRepo) {
	t.Helper()
	ctx := context.Background()

	fresh, err := d.RecordInbound(ctx, "msg-1", "628111")
	if err != nil || !fresh {
		t.Fatalf("first RecordInbound = %v, %v; want true", fresh, err)
	}

	fresh, err = d.RecordInbound(ctx, "msg-1", "628111")
	if err != nil || fresh {
		t.Fatalf("second RecordInbound = %v, %v; want false", fresh, err)
	}

	if err := d.MarkProcessed(ctx, "msg-1"); err != nil {
		t.Errorf("MarkProcessed failed: %v", err)
	}
}

func TestMemoryDedup(t *testing.T) {
	exerciseDedupRepo(t, NewMemoryDedup(0))
}

func TestMemoryDedupRetention(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDedup(time.Hour)
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	if fresh, _ := d.RecordInbound(ctx, "msg-1", "628111"); !fresh {
		t.Fatal("expected first record to be fresh")
	}

	now = now.Add(2 * time.Hour)
	if fresh, _ := d.RecordInbound(ctx, "msg-2", "628111"); !fresh {
		t.Fatal("expected msg-2 to be fresh")
	}
	if fresh, _ := d.RecordInbound(ctx, "msg-1", "628111"); !fresh {
		t.Error("expected msg-1 to be forgotten after retention")
	}
}

func TestSQLiteDedup(t *testing.T) {
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "dedup.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	exerciseDedupRepo(t, s)
}

func TestSQLiteDedupPrunesExpired(t *testing.T) {
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "dedup.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	old := time.Now().UTC().Add(-2 * DefaultDedupRetention)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_dedup (message_id, sender, received_at) VALUES (?, ?, ?)`,
		"msg-old", "628111", old); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if fresh, err := s.RecordInbound(ctx, "msg-new", "628111"); err != nil || !fresh {
		t.Fatalf("RecordInbound = %v, %v; want true", fresh, err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inbound_dedup`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected expired id pruned, %d rows remain", count)
	}
	if fresh, _ := s.RecordInbound(ctx, "msg-old", "628111"); !fresh {
		t.Error("expired id should be accepted again")
	}
}
