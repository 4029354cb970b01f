package attendance

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// State is the sign-in state of one identity.
type State string

const (
	// SignedOut means the identity has no open session.
	SignedOut State = "signed_out"
	// SignedIn means the identity has exactly one open session.
	SignedIn State = "signed_in"
)

// Session is one continuous presence interval for one identity.
// End and Duration are nil while the session is open. A session is
// immutable after closing and is never deleted by the engine.
type Session struct {
	ID       string
	Identity string

	Start time.Time
	End   *time.Time

	Duration *time.Duration

	// ClosedByPolicy is true when the session was closed by the daily
	// auto-close sweep rather than a matching tap.
	ClosedByPolicy bool
}

// Open reports whether the session has no end time yet.
func (s Session) Open() bool { return s.End == nil }

// TapResult is the outcome of processing one tap.
// Duration is set only when the tap closed a session.
type TapResult struct {
	State    State
	Session  Session
	Duration *time.Duration
}

// newSessionID returns a new ULID string for a session.
// ULIDs sort lexicographically by creation time, which keeps store
// listings in chronological order without an extra column.
func newSessionID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
