package flowz

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for graph construction misuse. These surface as panics
// wrapping an *Error: a graph wired after the collective has been released,
// or wired across collectives, is an invariant violation, not a recoverable
// condition.
var (
	// ErrConstructionCompleted reports a box or channel registered, or a
	// connection made, after ConstructionCompleted.
	ErrConstructionCompleted = errors.New("construction already completed")

	// ErrAlreadyCompleted reports a second call to ConstructionCompleted.
	ErrAlreadyCompleted = errors.New("construction completed twice")

	// ErrForeignCollective reports a Connect whose endpoints belong to a
	// different collective than the one being wired.
	ErrForeignCollective = errors.New("endpoint owned by a different collective")

	// ErrUnownedEndpoint reports a channel endpoint created without going
	// through NewIn/NewOut on a registered box.
	ErrUnownedEndpoint = errors.New("endpoint has no owning box")
)

// Error provides context about a runtime invariant violation: where in the
// graph it occurred and when. It wraps one of the sentinel errors above so
// hosts can classify with errors.Is.
type Error struct {
	Timestamp time.Time
	Err       error
	Path      []Name
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	path := strings.Join(e.Path, " -> ")
	if path == "" {
		path = "unknown"
	}
	return fmt.Sprintf("%s: %v", path, e.Err)
}

// Unwrap returns the underlying error, supporting errors.Is and errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// misuse panics with a construction Error. The runtime treats construction
// misuse as fatal; there is no graceful path out of a malformed graph.
func misuse(err error, now time.Time, path ...Name) {
	panic(&Error{Timestamp: now, Err: err, Path: path})
}
