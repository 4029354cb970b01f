package attendance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustEngine(t *testing.T, store Store) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), testLogger(), store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func localDay(hour, minute int) time.Time {
	return time.Date(2026, time.March, 9, hour, minute, 0, 0, time.UTC)
}

func TestEngine_TapOpensThenClosesWithExactDuration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := mustEngine(t, NewInMemoryStore())

	in, err := e.ProcessTap(ctx, "alice", localDay(9, 0))
	if err != nil {
		t.Fatalf("ProcessTap(open): %v", err)
	}
	if in.State != SignedIn {
		t.Fatalf("state after first tap = %s, want %s", in.State, SignedIn)
	}
	if in.Duration != nil {
		t.Fatalf("open tap must not report a duration")
	}

	out, err := e.ProcessTap(ctx, "alice", localDay(17, 30))
	if err != nil {
		t.Fatalf("ProcessTap(close): %v", err)
	}
	if out.State != SignedOut {
		t.Fatalf("state after second tap = %s, want %s", out.State, SignedOut)
	}
	if out.Duration == nil || *out.Duration != 8*time.Hour+30*time.Minute {
		t.Fatalf("duration = %v, want 8h30m", out.Duration)
	}
	if out.Session.ClosedByPolicy {
		t.Fatalf("tap-closed session must not be marked closed by policy")
	}
}

func TestEngine_EqualTimestampsAreValidZeroDurationClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := mustEngine(t, NewInMemoryStore())
	ts := localDay(12, 0)

	if _, err := e.ProcessTap(ctx, "alice", ts); err != nil {
		t.Fatalf("ProcessTap(open): %v", err)
	}
	out, err := e.ProcessTap(ctx, "alice", ts)
	if err != nil {
		t.Fatalf("ProcessTap(close, equal ts): %v", err)
	}
	if out.Duration == nil || *out.Duration != 0 {
		t.Fatalf("duration = %v, want 0", out.Duration)
	}
}

func TestEngine_OutOfOrderTimestampRejectedStateUnchanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := mustEngine(t, NewInMemoryStore())

	if _, err := e.ProcessTap(ctx, "dana", localDay(10, 0)); err != nil {
		t.Fatalf("ProcessTap: %v", err)
	}

	res, err := e.ProcessTap(ctx, "dana", localDay(9, 59))
	if !IsOutOfOrder(err) {
		t.Fatalf("expected ErrOutOfOrderTimestamp, got %v", err)
	}
	var ooe OutOfOrderError
	if !errors.As(err, &ooe) || ooe.Identity != "dana" {
		t.Fatalf("expected OutOfOrderError for dana, got %#v", err)
	}
	if res.State != SignedIn {
		t.Fatalf("reported state = %s, want unchanged %s", res.State, SignedIn)
	}
	if e.State("dana") != SignedIn {
		t.Fatalf("engine state changed on rejected tap")
	}
	if e.OpenCount() != 1 {
		t.Fatalf("open count = %d, want 1", e.OpenCount())
	}
}

func TestEngine_ForceCloseAllUsesDefaultDurationAndCutoffEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	e := mustEngine(t, store)

	if _, err := e.ProcessTap(ctx, "bob", localDay(9, 0)); err != nil {
		t.Fatalf("ProcessTap: %v", err)
	}

	cutoff := localDay(19, 0)
	closed, err := e.ForceCloseAll(ctx, cutoff, time.Hour)
	if err != nil {
		t.Fatalf("ForceCloseAll: %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("closed %d sessions, want 1", len(closed))
	}

	s := closed[0]
	if !s.ClosedByPolicy {
		t.Fatalf("expected closed-by-policy flag")
	}
	if s.End == nil || !s.End.Equal(cutoff) {
		t.Fatalf("end = %v, want cutoff %v", s.End, cutoff)
	}
	// The recorded duration is the configured default, not the 10h of
	// wall clock that elapsed.
	if s.Duration == nil || *s.Duration != time.Hour {
		t.Fatalf("duration = %v, want 1h", s.Duration)
	}
	if e.State("bob") != SignedOut {
		t.Fatalf("bob still signed in after sweep")
	}
}

func TestEngine_ForceCloseAllIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	e := mustEngine(t, store)

	if _, err := e.ProcessTap(ctx, "bob", localDay(9, 0)); err != nil {
		t.Fatalf("ProcessTap: %v", err)
	}

	cutoff := localDay(19, 0)
	if _, err := e.ForceCloseAll(ctx, cutoff, time.Hour); err != nil {
		t.Fatalf("first ForceCloseAll: %v", err)
	}

	first, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}

	closed, err := e.ForceCloseAll(ctx, cutoff, time.Hour)
	if err != nil {
		t.Fatalf("second ForceCloseAll: %v", err)
	}
	if len(closed) != 0 {
		t.Fatalf("second sweep closed %d sessions, want 0", len(closed))
	}

	second, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("store changed after second sweep: %d -> %d rows", len(first), len(second))
	}
}

func TestEngine_TapAfterPassedCutoffOpensNormally(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := mustEngine(t, NewInMemoryStore())

	if _, err := e.ForceCloseAll(ctx, localDay(19, 0), time.Hour); err != nil {
		t.Fatalf("ForceCloseAll: %v", err)
	}

	res, err := e.ProcessTap(ctx, "carol", localDay(20, 5))
	if err != nil {
		t.Fatalf("ProcessTap after cutoff: %v", err)
	}
	if res.State != SignedIn {
		t.Fatalf("state = %s, want %s", res.State, SignedIn)
	}
}

func TestEngine_ForceCloseAllSkipsSessionsStartedAfterCutoff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := mustEngine(t, NewInMemoryStore())

	// Opened at 19:30, then a catch-up sweep for the 19:00 cutoff runs.
	if _, err := e.ProcessTap(ctx, "carol", localDay(19, 30)); err != nil {
		t.Fatalf("ProcessTap: %v", err)
	}

	closed, err := e.ForceCloseAll(ctx, localDay(19, 0), time.Hour)
	if err != nil {
		t.Fatalf("ForceCloseAll: %v", err)
	}
	if len(closed) != 0 {
		t.Fatalf("sweep closed %d sessions, want 0", len(closed))
	}
	if e.State("carol") != SignedIn {
		t.Fatalf("post-cutoff session must stay open")
	}
}

func TestEngine_RebuildsOpenSessionsFromStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()

	start := localDay(8, 15)
	err := store.AppendSession(ctx, Session{ID: "01HZX6Q0000000000000000000", Identity: "alice", Start: start})
	if err != nil {
		t.Fatalf("AppendSession: %v", err)
	}

	e := mustEngine(t, store)

	if e.State("alice") != SignedIn {
		t.Fatalf("alice = %s after rebuild, want %s", e.State("alice"), SignedIn)
	}

	// The rebuilt session closes against its stored start time.
	out, err := e.ProcessTap(ctx, "alice", localDay(9, 15))
	if err != nil {
		t.Fatalf("ProcessTap: %v", err)
	}
	if out.Duration == nil || *out.Duration != time.Hour {
		t.Fatalf("duration = %v, want 1h", out.Duration)
	}
}

// failStore fails every append after the first n.
type failStore struct {
	*InMemoryStore
	mu      sync.Mutex
	allowed int
}

func (f *failStore) AppendSession(ctx context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allowed <= 0 {
		return errors.New("store unavailable")
	}
	f.allowed--
	return f.InMemoryStore.AppendSession(ctx, s)
}

func TestEngine_PersistFailureKeepsInMemoryTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &failStore{InMemoryStore: NewInMemoryStore()}
	e := mustEngine(t, store)

	res, err := e.ProcessTap(ctx, "alice", localDay(9, 0))
	if !IsPersist(err) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if res.State != SignedIn {
		t.Fatalf("result state = %s, want %s", res.State, SignedIn)
	}
	// The transition survived in memory even though the append failed.
	if e.State("alice") != SignedIn {
		t.Fatalf("in-memory state lost on persist failure")
	}

	open, err := store.ListOpenSessions(ctx)
	if err != nil {
		t.Fatalf("ListOpenSessions: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("store has %d open sessions, want 0", len(open))
	}
}

func TestEngine_AtMostOneOpenSessionPerIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	e := mustEngine(t, store)

	base := localDay(9, 0)
	identities := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for i, id := range identities {
		wg.Add(1)
		go func(id string, off time.Duration) {
			defer wg.Done()
			for tap := 0; tap < 11; tap++ {
				_, _ = e.ProcessTap(ctx, id, base.Add(off+time.Duration(tap)*time.Minute))
			}
		}(id, time.Duration(i)*time.Second)
	}
	wg.Wait()

	// 11 taps per identity: everyone ends signed in, exactly once.
	if got := e.OpenCount(); got != len(identities) {
		t.Fatalf("open count = %d, want %d", got, len(identities))
	}

	open, err := store.ListOpenSessions(ctx)
	if err != nil {
		t.Fatalf("ListOpenSessions: %v", err)
	}
	seen := make(map[string]bool, len(open))
	for _, s := range open {
		if seen[s.Identity] {
			t.Fatalf("identity %s has more than one open session", s.Identity)
		}
		seen[s.Identity] = true
	}
	if len(seen) != len(identities) {
		t.Fatalf("store open identities = %d, want %d", len(seen), len(identities))
	}
}

func TestEngine_SweepAndTapsSerialize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	e := mustEngine(t, store)

	base := localDay(9, 0)
	for i := 0; i < 8; i++ {
		if _, err := e.ProcessTap(ctx, string(rune('a'+i)), base); err != nil {
			t.Fatalf("ProcessTap: %v", err)
		}
	}

	cutoff := localDay(19, 0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.ForceCloseAll(ctx, cutoff, time.Hour)
	}()
	for i := 0; i < 8; i++ {
		_, _ = e.ProcessTap(ctx, string(rune('a'+i)), cutoff.Add(time.Minute))
	}
	<-done

	// Whatever the interleaving, no identity may end up double-closed or
	// with two open sessions.
	open, err := store.ListOpenSessions(ctx)
	if err != nil {
		t.Fatalf("ListOpenSessions: %v", err)
	}
	seen := make(map[string]bool)
	for _, s := range open {
		if seen[s.Identity] {
			t.Fatalf("identity %s has two open sessions", s.Identity)
		}
		seen[s.Identity] = true
	}
}
