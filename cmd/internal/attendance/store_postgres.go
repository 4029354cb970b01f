package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (attend.sessions).
// Schema management is external; see db.go in the app package for pool
// construction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close is a no-op; the pool is owned by the app.
func (s *PostgresStore) Close() error { return nil }

// AppendSession upserts a session row by ID. The open row inserted at
// sign-in is completed in place when the session closes.
func (s *PostgresStore) AppendSession(ctx context.Context, in Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attend.sessions (
			id, identity, start_at, end_at, duration_seconds, closed_by_policy
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			end_at = EXCLUDED.end_at,
			duration_seconds = EXCLUDED.duration_seconds,
			closed_by_policy = EXCLUDED.closed_by_policy
	`, in.ID, in.Identity, in.Start, in.End, durationSeconds(in.Duration), in.ClosedByPolicy)
	return err
}

// ListOpenSessions returns sessions with no end time, ordered by start.
func (s *PostgresStore) ListOpenSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, identity, start_at, end_at, duration_seconds, closed_by_policy
		FROM attend.sessions
		WHERE end_at IS NULL
		ORDER BY start_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSessions(rows)
}

// ListRecent returns up to limit sessions, newest first.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, identity, start_at, end_at, duration_seconds, closed_by_policy
		FROM attend.sessions
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSessions(rows)
}

func scanSessions(rows pgx.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		var (
			sess Session
			secs *float64
		)
		if err := rows.Scan(&sess.ID, &sess.Identity, &sess.Start, &sess.End, &secs, &sess.ClosedByPolicy); err != nil {
			return nil, err
		}
		sess.Duration = durationFromSeconds(secs)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func durationSeconds(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	v := d.Seconds()
	return &v
}

func durationFromSeconds(secs *float64) *time.Duration {
	if secs == nil {
		return nil
	}
	d := time.Duration(*secs * float64(time.Second))
	return &d
}
