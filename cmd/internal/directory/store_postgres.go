package directory

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresDirectory is the durable member directory (attend.members).
// It supports runtime card registration and the in-office flag shown by
// the front end.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a Postgres-backed directory.
func NewPostgresDirectory(pool *pgxpool.Pool) (*PostgresDirectory, error) {
	if pool == nil {
		return nil, errors.New("nil pool")
	}
	return &PostgresDirectory{pool: pool}, nil
}

// Resolve looks up a member by card identifier.
func (d *PostgresDirectory) Resolve(ctx context.Context, cardID string) (Member, error) {
	var m Member
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, position, rfid_tag
		FROM attend.members
		WHERE rfid_tag = $1
	`, cardID).Scan(&m.ID, &m.Name, &m.Position, &m.CardID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, unknownCard(cardID)
	}
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// RegisterCard creates a member record bound to a card. A card may back
// at most one member; re-registering returns ErrCardTaken.
func (d *PostgresDirectory) RegisterCard(ctx context.Context, cardID, name, position string) (Member, error) {
	cardID = strings.TrimSpace(cardID)
	name = strings.TrimSpace(name)
	if cardID == "" || name == "" {
		return Member{}, errors.New("card and name are required")
	}

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err != nil {
		return Member{}, err
	}

	m := Member{ID: id.String(), Name: name, Position: strings.TrimSpace(position), CardID: cardID}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO attend.members (id, name, position, rfid_tag, in_office)
		VALUES ($1, $2, $3, $4, FALSE)
	`, m.ID, m.Name, m.Position, m.CardID)
	if isUniqueViolation(err) {
		return Member{}, fmt.Errorf("%w: %q", ErrCardTaken, cardID)
	}
	if err != nil {
		return Member{}, err
	}

	return m, nil
}

// SetPresent flips the member's in-office flag (best-effort; the
// session log is the source of truth).
func (d *PostgresDirectory) SetPresent(ctx context.Context, memberID string, present bool) error {
	_, err := d.pool.Exec(ctx, `
		UPDATE attend.members
		SET in_office = $2
		WHERE id = $1
	`, memberID, present)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
