package dispatch

import (
	"time"

	"attend/cmd/internal/attendance"
	"attend/cmd/internal/directory"
)

type tapRequest struct {
	// CardID is the raw card identifier from the reader; Identity is
	// direct manual entry. Exactly one must be set.
	CardID   string `json:"card_id,omitempty"`
	Identity string `json:"identity,omitempty"`
}

type tapResponse struct {
	Identity        string   `json:"identity"`
	Name            string   `json:"name,omitempty"`
	Position        string   `json:"position,omitempty"`
	State           string   `json:"state"`
	SessionID       string   `json:"session_id"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Persisted       bool     `json:"persisted"`
}

type registerRequest struct {
	CardID   string `json:"card_id"`
	Name     string `json:"name"`
	Position string `json:"position,omitempty"`
}

type memberResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position,omitempty"`
	CardID   string `json:"card_id"`
}

type statusEntry struct {
	Identity  string    `json:"identity"`
	SessionID string    `json:"session_id"`
	SignedIn  time.Time `json:"signed_in_at"`
}

type statusResponse struct {
	Open []statusEntry `json:"open"`
}

type logEntry struct {
	SessionID       string     `json:"session_id"`
	Identity        string     `json:"identity"`
	Start           time.Time  `json:"start"`
	End             *time.Time `json:"end,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	ClosedByPolicy  bool       `json:"closed_by_policy"`
}

type logsResponse struct {
	Sessions []logEntry `json:"sessions"`
}

// Event is one entry on the live feed the front end renders.
type Event struct {
	Type            string     `json:"type"` // tap_in | tap_out | auto_close
	Identity        string     `json:"identity"`
	Name            string     `json:"name,omitempty"`
	Position        string     `json:"position,omitempty"`
	At              time.Time  `json:"at"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	End             *time.Time `json:"end,omitempty"`
}

func durationSeconds(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	v := d.Seconds()
	return &v
}

func toLogEntry(s attendance.Session) logEntry {
	return logEntry{
		SessionID:       s.ID,
		Identity:        s.Identity,
		Start:           s.Start,
		End:             s.End,
		DurationSeconds: durationSeconds(s.Duration),
		ClosedByPolicy:  s.ClosedByPolicy,
	}
}

func tapEvent(m directory.Member, res attendance.TapResult, at time.Time) Event {
	typ := "tap_in"
	if res.State == attendance.SignedOut {
		typ = "tap_out"
	}
	return Event{
		Type:            typ,
		Identity:        res.Session.Identity,
		Name:            m.Name,
		Position:        m.Position,
		At:              at,
		DurationSeconds: durationSeconds(res.Duration),
	}
}

// AutoCloseEvent converts a swept session to a feed event.
func AutoCloseEvent(s attendance.Session) Event {
	ev := Event{
		Type:            "auto_close",
		Identity:        s.Identity,
		DurationSeconds: durationSeconds(s.Duration),
		End:             s.End,
	}
	if s.End != nil {
		ev.At = *s.End
	}
	return ev
}
