// Package directory maps raw card identifiers to member identities.
//
// The attendance engine never sees card identifiers; unresolved cards
// are rejected at the dispatch boundary before any state transition.
package directory

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnknownCard is returned when a card identifier matches no member.
	ErrUnknownCard = errors.New("unknown card")

	// ErrCardTaken is returned when registering a card already assigned
	// to another member.
	ErrCardTaken = errors.New("card already registered")
)

// Member is one person in the directory. ID is the stable identity key
// the attendance engine operates on.
type Member struct {
	ID       string
	Name     string
	Position string
	CardID   string
}

// Resolver resolves a card identifier to a member.
type Resolver interface {
	Resolve(ctx context.Context, cardID string) (Member, error)
}

// Registrar is implemented by directories that support registering new
// cards at runtime (the Postgres directory; file directories are edited
// on disk instead).
type Registrar interface {
	RegisterCard(ctx context.Context, cardID, name, position string) (Member, error)
}

// PresenceMarker is implemented by directories that track an in-office
// flag alongside the durable session log.
type PresenceMarker interface {
	SetPresent(ctx context.Context, memberID string, present bool) error
}

func unknownCard(cardID string) error {
	return fmt.Errorf("%w: %q", ErrUnknownCard, cardID)
}
