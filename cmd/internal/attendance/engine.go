package attendance

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// identityState tracks one identity's open session and the timestamp of
// its last accepted event. lastEvent advances on taps and on auto-close
// sweeps so that stale timestamps are rejected, never silently accepted.
type identityState struct {
	lastEvent time.Time
	open      *Session
}

// Engine owns the per-identity sign-in state and decides every session
// transition. The state table is the single shared resource between tap
// processing and the auto-close sweep; all mutations run under mu.
type Engine struct {
	log   *slog.Logger
	store Store

	mu     sync.Mutex
	states map[string]*identityState
}

// NewEngine constructs an Engine and rebuilds the signed-in table from
// the store's open sessions, so state survives process restarts without
// re-scanning full history.
func NewEngine(ctx context.Context, log *slog.Logger, store Store) (*Engine, error) {
	e := &Engine{
		log:    log,
		store:  store,
		states: make(map[string]*identityState),
	}

	open, err := store.ListOpenSessions(ctx)
	if err != nil {
		return nil, err
	}

	for _, s := range open {
		if prev, ok := e.states[s.Identity]; ok && prev.open != nil {
			// The store should never hold two open sessions for one
			// identity. Keep the earlier one and flag the violation.
			log.Error("engine.rebuild.duplicate_open", "identity", s.Identity, "session_id", s.ID)
			continue
		}
		s := s
		e.states[s.Identity] = &identityState{lastEvent: s.Start, open: &s}
	}

	log.Info("engine.rebuild", "open_sessions", len(e.states))
	return e, nil
}

// ProcessTap applies one tap for a resolved identity.
//
// A tap for a signed-out identity opens a session starting at ts; a tap
// for a signed-in identity closes the open session with duration
// ts − start. Equal timestamps are a valid zero-duration close. Every
// tap flips state; debouncing belongs to the dispatcher.
//
// On a store failure the returned error wraps ErrPersist and the
// TapResult still describes the transition, which is kept in memory.
func (e *Engine) ProcessTap(ctx context.Context, identity string, ts time.Time) (TapResult, error) {
	if identity == "" {
		return TapResult{}, errors.New("empty identity")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[identity]
	if !ok {
		st = &identityState{}
		e.states[identity] = st
	}

	if ts.Before(st.lastEvent) {
		res := TapResult{State: e.stateLocked(st)}
		return res, OutOfOrderError{Identity: identity, Last: st.lastEvent, Got: ts}
	}
	st.lastEvent = ts

	if st.open == nil {
		id, err := newSessionID(ts)
		if err != nil {
			return TapResult{}, err
		}
		s := Session{ID: id, Identity: identity, Start: ts}
		st.open = &s

		res := TapResult{State: SignedIn, Session: s}
		if err := e.store.AppendSession(ctx, s); err != nil {
			e.log.Error("engine.tap.persist_open.fail", "identity", identity, "session_id", s.ID, "err", err)
			return res, PersistError{SessionID: s.ID, Err: err}
		}
		return res, nil
	}

	s := *st.open
	end := ts
	dur := ts.Sub(s.Start)
	s.End = &end
	s.Duration = &dur
	st.open = nil

	res := TapResult{State: SignedOut, Session: s, Duration: &dur}
	if err := e.store.AppendSession(ctx, s); err != nil {
		e.log.Error("engine.tap.persist_close.fail", "identity", identity, "session_id", s.ID, "err", err)
		return res, PersistError{SessionID: s.ID, Err: err}
	}
	return res, nil
}

// ForceCloseAll closes every open session started at or before cutoff
// with end time = cutoff and the given default duration, marking it
// closed by policy. Identities already signed out are untouched, so a
// repeated sweep for the same cutoff finds nothing and does nothing.
//
// Sessions opened after the cutoff (taps are unaffected by an
// already-passed trigger) are left open to keep start ≤ end.
func (e *Engine) ForceCloseAll(ctx context.Context, cutoff time.Time, defaultDuration time.Duration) ([]Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var closed []Session
	var errs []error

	for identity, st := range e.states {
		if st.open == nil || st.open.Start.After(cutoff) {
			continue
		}

		s := *st.open
		end := cutoff
		dur := defaultDuration
		s.End = &end
		s.Duration = &dur
		s.ClosedByPolicy = true
		st.open = nil
		if cutoff.After(st.lastEvent) {
			st.lastEvent = cutoff
		}

		if err := e.store.AppendSession(ctx, s); err != nil {
			e.log.Error("engine.autoclose.persist.fail", "identity", identity, "session_id", s.ID, "err", err)
			errs = append(errs, PersistError{SessionID: s.ID, Err: err})
		}
		closed = append(closed, s)
	}

	sort.Slice(closed, func(i, j int) bool { return closed[i].Start.Before(closed[j].Start) })
	return closed, errors.Join(errs...)
}

// OpenSessions returns a snapshot of all open sessions, ordered by start.
func (e *Engine) OpenSessions() []Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	var open []Session
	for _, st := range e.states {
		if st.open != nil {
			open = append(open, *st.open)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Start.Before(open[j].Start) })
	return open
}

// OpenCount returns the number of currently open sessions.
func (e *Engine) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, st := range e.states {
		if st.open != nil {
			n++
		}
	}
	return n
}

// State reports the current state of one identity.
func (e *Engine) State(identity string) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[identity]
	if !ok {
		return SignedOut
	}
	return e.stateLocked(st)
}

func (e *Engine) stateLocked(st *identityState) State {
	if st.open != nil {
		return SignedIn
	}
	return SignedOut
}
