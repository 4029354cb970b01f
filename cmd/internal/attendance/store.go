package attendance

import "context"

// Store is the durable record of sessions, open and closed.
//
// Requirements:
//   - AppendSession upserts by session ID: the open row written at
//     sign-in is completed in place at close.
//   - ListOpenSessions returns only rows with no end time; it is the
//     sole source of truth for startup reconciliation.
//   - ListRecent returns the newest sessions first.
type Store interface {
	AppendSession(ctx context.Context, s Session) error
	ListOpenSessions(ctx context.Context) ([]Session, error)
	ListRecent(ctx context.Context, limit int) ([]Session, error)
	Close() error
}
