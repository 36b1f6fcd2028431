// Package sessions keeps a read-through cache of the caller's server-side
// upload sessions and the server's active-session pointer. Every mutation is
// one remote call followed by a full re-fetch; the cache is never patched in
// place, and a failed call leaves it exactly as it was.
package sessions

import (
	"errors"
	"fmt"
)

// ErrDeleteDeclined is returned when the user does not confirm a delete.
var ErrDeleteDeclined = errors.New("sessions: delete not confirmed")

// ValidationError reports input rejected locally, before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sessions: invalid %s: %s", e.Field, e.Reason)
}
