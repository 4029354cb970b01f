package attendance

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// exerciseStore runs the Store contract shared by every backend:
// upsert-by-ID completion, open-session listing, recent ordering.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	start := time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC)
	open := Session{ID: "01HZX6Q000000000000000000A", Identity: "alice", Start: start}
	if err := store.AppendSession(ctx, open); err != nil {
		t.Fatalf("AppendSession(open): %v", err)
	}

	got, err := store.ListOpenSessions(ctx)
	if err != nil {
		t.Fatalf("ListOpenSessions: %v", err)
	}
	if len(got) != 1 || got[0].ID != open.ID || !got[0].Open() {
		t.Fatalf("open sessions = %+v, want one open row %s", got, open.ID)
	}
	if !got[0].Start.Equal(start) {
		t.Fatalf("start round-trip = %v, want %v", got[0].Start, start)
	}

	// Completing the same ID must replace the open row, not add one.
	end := start.Add(8*time.Hour + 30*time.Minute)
	dur := end.Sub(start)
	closed := open
	closed.End = &end
	closed.Duration = &dur
	if err := store.AppendSession(ctx, closed); err != nil {
		t.Fatalf("AppendSession(close): %v", err)
	}

	got, err = store.ListOpenSessions(ctx)
	if err != nil {
		t.Fatalf("ListOpenSessions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("open sessions after close = %d, want 0", len(got))
	}

	policyEnd := start.Add(10 * time.Hour)
	policyDur := time.Hour
	swept := Session{
		ID:             "01HZX6Q000000000000000000B",
		Identity:       "bob",
		Start:          start.Add(time.Minute),
		End:            &policyEnd,
		Duration:       &policyDur,
		ClosedByPolicy: true,
	}
	if err := store.AppendSession(ctx, swept); err != nil {
		t.Fatalf("AppendSession(swept): %v", err)
	}

	recent, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d rows, want 2", len(recent))
	}
	if recent[0].ID != swept.ID {
		t.Fatalf("recent[0] = %s, want newest %s", recent[0].ID, swept.ID)
	}
	if !recent[0].ClosedByPolicy {
		t.Fatalf("closed-by-policy flag lost in round trip")
	}
	if recent[1].Duration == nil || *recent[1].Duration != dur {
		t.Fatalf("duration round-trip = %v, want %v", recent[1].Duration, dur)
	}

	limited, err := store.ListRecent(ctx, 1)
	if err != nil {
		t.Fatalf("ListRecent(1): %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("ListRecent(1) = %d rows, want 1", len(limited))
	}
}

func TestInMemoryStore_Contract(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewInMemoryStore())
}

func TestSQLiteStore_Contract(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "attendance.db")
	store, err := NewSQLiteStore(context.Background(), path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}

func TestSQLiteStore_ReopenSeesPersistedSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "attendance.db")

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	start := time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC)
	if err := store.AppendSession(ctx, Session{ID: "01HZX6Q000000000000000000C", Identity: "alice", Start: start}); err != nil {
		t.Fatalf("AppendSession: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore(reopen): %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	open, err := reopened.ListOpenSessions(ctx)
	if err != nil {
		t.Fatalf("ListOpenSessions: %v", err)
	}
	if len(open) != 1 || open[0].Identity != "alice" {
		t.Fatalf("open after reopen = %+v, want alice's session", open)
	}
}
