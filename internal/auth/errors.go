// Package auth decides which credential each outbound request carries and
// drives the login/logout state transitions:
//
//	Anonymous -> GuestActive   -> (expired)  -> Anonymous
//	Anonymous -> DurableActive -> (sign-out) -> Anonymous
//
// A guest credential and a durable account may both be stored at once, but a
// valid guest credential always wins during resolution. Resolution never
// fails: every error degrades to "no credential" and the request is still
// sent, because the server rejects unauthenticated calls on its own.
package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to check.
var (
	ErrNoAccount           = errors.New("auth: no signed-in account")
	ErrInteractionRequired = errors.New("auth: user interaction required")
	ErrGuestExpired        = errors.New("auth: guest credential already expired")
)

// CredentialError reports a failed token acquisition. The Resolver logs it
// and carries on anonymously; login commands return it.
type CredentialError struct {
	Op      string // "silent", "interactive", "guest-login", "sign-out"
	Account string // identifier of the account involved, if any
	Err     error
}

func (e *CredentialError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("auth: %s token acquisition for %s failed: %v", e.Op, e.Account, e.Err)
	}

	return fmt.Sprintf("auth: %s failed: %v", e.Op, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}
