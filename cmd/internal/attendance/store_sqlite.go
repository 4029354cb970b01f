package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	identity         TEXT NOT NULL,
	start_at_ns      INTEGER NOT NULL,
	end_at_ns        INTEGER,
	duration_ns      INTEGER,
	closed_by_policy INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS sessions_open ON sessions (identity) WHERE end_at_ns IS NULL;
`

// SQLiteStore implements Store on a local SQLite file. It is the kiosk
// mode for single-reader deployments without a Postgres server; the
// schema is created on open.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// A single writer avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// AppendSession upserts a session row by ID.
func (s *SQLiteStore) AppendSession(ctx context.Context, in Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, identity, start_at_ns, end_at_ns, duration_ns, closed_by_policy)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			end_at_ns = excluded.end_at_ns,
			duration_ns = excluded.duration_ns,
			closed_by_policy = excluded.closed_by_policy
	`, in.ID, in.Identity, in.Start.UnixNano(), nanosOf(in.End), durationNanos(in.Duration), boolToInt(in.ClosedByPolicy))
	return err
}

// ListOpenSessions returns sessions with no end time, ordered by start.
func (s *SQLiteStore) ListOpenSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity, start_at_ns, end_at_ns, duration_ns, closed_by_policy
		FROM sessions
		WHERE end_at_ns IS NULL
		ORDER BY start_at_ns ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteSessions(rows)
}

// ListRecent returns up to limit sessions, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity, start_at_ns, end_at_ns, duration_ns, closed_by_policy
		FROM sessions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteSessions(rows)
}

func scanSQLiteSessions(rows *sql.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		var (
			sess    Session
			startNS int64
			endNS   sql.NullInt64
			durNS   sql.NullInt64
			policy  int
		)
		if err := rows.Scan(&sess.ID, &sess.Identity, &startNS, &endNS, &durNS, &policy); err != nil {
			return nil, err
		}

		sess.Start = time.Unix(0, startNS).UTC()
		if endNS.Valid {
			end := time.Unix(0, endNS.Int64).UTC()
			sess.End = &end
		}
		if durNS.Valid {
			d := time.Duration(durNS.Int64)
			sess.Duration = &d
		}
		sess.ClosedByPolicy = policy != 0

		out = append(out, sess)
	}
	return out, rows.Err()
}

func nanosOf(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func durationNanos(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	n := int64(*d)
	return &n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
