package attendance

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOutOfOrderTimestamp is returned when a tap timestamp precedes the
	// identity's last recorded event. The identity's state is unchanged.
	ErrOutOfOrderTimestamp = errors.New("tap timestamp out of order")

	// ErrPersist is returned when the session store append fails.
	// The in-memory transition is kept; reconciliation on the next
	// restart rederives open sessions from the store.
	ErrPersist = errors.New("session persist failed")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// OutOfOrderError carries the conflicting timestamps for diagnostics.
type OutOfOrderError struct {
	Identity string
	Last     time.Time
	Got      time.Time
}

func (e OutOfOrderError) Error() string {
	return fmt.Sprintf("%s: identity %s: got %s, last event %s",
		ErrOutOfOrderTimestamp.Error(), e.Identity,
		e.Got.Format(time.RFC3339), e.Last.Format(time.RFC3339))
}

func (e OutOfOrderError) Unwrap() error { return ErrOutOfOrderTimestamp }

// PersistError wraps a store append failure for one session.
type PersistError struct {
	SessionID string
	Err       error
}

func (e PersistError) Error() string {
	return fmt.Sprintf("%s: session %s: %v", ErrPersist.Error(), e.SessionID, e.Err)
}

func (e PersistError) Unwrap() error { return ErrPersist }

// IsOutOfOrder reports whether err represents ErrOutOfOrderTimestamp.
func IsOutOfOrder(err error) bool { return errors.Is(err, ErrOutOfOrderTimestamp) }

// IsPersist reports whether err represents ErrPersist.
func IsPersist(err error) bool { return errors.Is(err, ErrPersist) }
