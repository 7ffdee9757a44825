package session

import (
	"context"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	s, err := st.GetOrCreate(ctx, "628111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Step != StepMenu || s.History.Len() != 0 {
		t.Errorf("new session should be at MENU with empty history: %+v", s)
	}

	s.Advance(StepChooseService)
	// Unsaved edits are not visible to other readers.
	again, _ := st.GetOrCreate(ctx, "628111")
	if again.Step != StepMenu {
		t.Error("unsaved edits leaked into the store")
	}

	if err := st.Replace(ctx, "628111", s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, _ = st.GetOrCreate(ctx, "628111")
	if again.Step != StepChooseService {
		t.Errorf("expected replaced session, got %s", again.Step)
	}

	if n, _ := st.Count(ctx); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}

	if err := st.Delete(ctx, "628111"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fresh, _ := st.GetOrCreate(ctx, "628111")
	if fresh.Step != StepMenu {
		t.Error("expected a fresh session after delete")
	}

	if err := st.Delete(ctx, "unknown"); err != nil {
		t.Errorf("deleting a missing session should succeed, got %v", err)
	}
}
