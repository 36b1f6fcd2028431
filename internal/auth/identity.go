package auth

import "context"

// Account is a read-only reference into the identity provider's own account
// list. The core reads nothing else from it.
type Account struct {
	HomeAccountID string
	Username      string
	Name          string
}

// Identifier is the identity string sent for this account: the username,
// else the stable home account ID.
func (a Account) Identifier() string {
	if a.Username != "" {
		return a.Username
	}

	return a.HomeAccountID
}

// DisplayName is the human-readable label: the name, else the identifier.
func (a Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}

	return a.Identifier()
}

// IdentityProvider is the opaque identity capability. Accounts must be a
// local lookup (no network); the acquire methods may block on the network or
// on the user.
type IdentityProvider interface {
	Accounts(ctx context.Context) ([]Account, error)
	AcquireTokenSilent(ctx context.Context, account Account) (string, error)
	AcquireTokenInteractive(ctx context.Context) (Account, string, error)
	SignOut(ctx context.Context, account Account) error
}
