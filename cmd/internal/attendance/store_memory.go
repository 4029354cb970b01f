package attendance

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// InMemoryStore is a dev/test fallback when no database is configured.
// It keeps every session for the process lifetime; retention is a
// durable-store concern and does not apply here.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	order    []string // session IDs in first-append order
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]Session)}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// AppendSession upserts a session row by ID.
func (s *InMemoryStore) AppendSession(ctx context.Context, in Session) error {
	if in.ID == "" || in.Identity == "" {
		return errors.New("invalid session")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[in.ID]; !ok {
		s.order = append(s.order, in.ID)
	}
	s.sessions[in.ID] = in
	return nil
}

// ListOpenSessions returns sessions with no end time, ordered by start.
func (s *InMemoryStore) ListOpenSessions(ctx context.Context) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var open []Session
	for _, id := range s.order {
		if sess := s.sessions[id]; sess.Open() {
			open = append(open, sess)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Start.Before(open[j].Start) })
	return open, nil
}

// ListRecent returns up to limit sessions, newest append first.
func (s *InMemoryStore) ListRecent(ctx context.Context, limit int) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.sessions[s.order[i]])
	}
	return out, nil
}
