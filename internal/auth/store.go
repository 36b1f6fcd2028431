package auth

import (
	"context"

	"github.com/tonimelisma/screener-go/internal/credstore"
)

// CredentialStore is the subset of *credstore.Store the auth package needs.
type CredentialStore interface {
	Guest(ctx context.Context) (*credstore.Guest, error)
	SaveGuest(ctx context.Context, g credstore.Guest) error
	PurgeGuest(ctx context.Context) error
	LastIdentity(ctx context.Context) (string, error)
	SaveLastIdentity(ctx context.Context, id string) error
	ClearLastIdentity(ctx context.Context) error
}
