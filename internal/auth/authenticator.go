package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/screener-go/internal/credstore"
	"github.com/tonimelisma/screener-go/internal/notice"
)

// GuestGrant is a freshly issued guest credential.
type GuestGrant struct {
	Token     string
	ExpiresAt time.Time
}

// GuestService issues and revokes guest credentials on the server.
type GuestService interface {
	IssueGuest(ctx context.Context) (GuestGrant, error)
	RevokeGuest(ctx context.Context) error
}

// Authenticator drives the login and logout transitions. It shares the
// store and identity provider with a Resolver.
type Authenticator struct {
	resolver *Resolver
	store    CredentialStore
	identity IdentityProvider
	guests   GuestService
	notifier notice.Notifier
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator bound to resolver's store and
// identity provider.
func NewAuthenticator(resolver *Resolver, guests GuestService, notifier notice.Notifier, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}

	if notifier == nil {
		notifier = notice.Discard
	}

	return &Authenticator{
		resolver: resolver,
		store:    resolver.store,
		identity: resolver.identity,
		guests:   guests,
		notifier: notifier,
		logger:   logger,
	}
}

// GuestLogin obtains a guest credential from the server and stores it. Any
// signed-in durable account is left alone; the guest simply takes precedence
// until it expires.
func (a *Authenticator) GuestLogin(ctx context.Context) (*credstore.Guest, error) {
	grant, err := a.guests.IssueGuest(ctx)
	if err != nil {
		return nil, a.loginFailed("guest-login", "", err)
	}

	if grant.Token == "" {
		return nil, a.loginFailed("guest-login", "", errors.New("server returned an empty token"))
	}

	if !grant.ExpiresAt.After(a.resolver.Now()) {
		return nil, a.loginFailed("guest-login", "", ErrGuestExpired)
	}

	g := credstore.Guest{Token: grant.Token, Expiry: grant.ExpiresAt}
	if err := a.store.SaveGuest(ctx, g); err != nil {
		return nil, a.loginFailed("guest-login", "", fmt.Errorf("storing guest credential: %w", err))
	}

	id := GuestIdentity(g.Token)
	a.resolver.remember(ctx, id)

	a.logger.Info("guest login succeeded",
		slog.String("identity", id),
		slog.Time("expiry", g.Expiry),
	)

	a.notifier.Notify(notice.Success(fmt.Sprintf("Signed in as guest (%s)", id)))

	return &g, nil
}

// DurableLogin signs in through the identity provider. Tokens stay with the
// provider; only the resulting identity is cached here.
func (a *Authenticator) DurableLogin(ctx context.Context) (Account, error) {
	acct, _, err := a.resolver.acquireInteractive(ctx)
	if err != nil {
		return Account{}, a.loginFailed("interactive", "", err)
	}

	a.resolver.remember(ctx, acct.Identifier())

	a.logger.Info("login succeeded", slog.String("account", acct.Identifier()))
	a.notifier.Notify(notice.Success("Signed in as " + acct.DisplayName()))

	return acct, nil
}

// Logout ends the effective credential. A guest credential is revoked on a
// best-effort basis; otherwise the first durable account is signed out. The
// local guest entry and the last identity are cleared on every path, even
// when signing out fails.
func (a *Authenticator) Logout(ctx context.Context) error {
	state := a.resolver.Peek(ctx)

	var signOutErr error

	switch state.Kind {
	case KindGuest:
		if err := a.guests.RevokeGuest(ctx); err != nil {
			a.logger.Warn("guest revocation failed, purging locally anyway",
				slog.String("error", err.Error()),
			)
		}
	case KindDurable:
		if err := a.identity.SignOut(ctx, *state.Account); err != nil {
			signOutErr = &CredentialError{Op: "sign-out", Account: state.Account.Identifier(), Err: err}
		}
	case KindNone:
		a.logger.Debug("logout with no effective credential")
	}

	if err := a.store.PurgeGuest(ctx); err != nil {
		return a.logoutFailed(fmt.Errorf("auth: purging guest credential: %w", err))
	}

	if err := a.store.ClearLastIdentity(ctx); err != nil {
		return a.logoutFailed(fmt.Errorf("auth: clearing last identity: %w", err))
	}

	a.resolver.forget()

	if signOutErr != nil {
		return a.logoutFailed(signOutErr)
	}

	a.logger.Info("logged out", slog.String("identity", state.Identity), slog.String("kind", state.Kind.String()))
	a.notifier.Notify(notice.Success("Signed out"))

	return nil
}

func (a *Authenticator) loginFailed(op, account string, err error) error {
	credErr := &CredentialError{Op: op, Account: account, Err: err}

	a.logger.Warn("login failed", slog.String("error", credErr.Error()))
	a.notifier.Notify(notice.Failure("Login failed: " + err.Error()))

	return credErr
}

func (a *Authenticator) logoutFailed(err error) error {
	a.logger.Warn("logout failed", slog.String("error", err.Error()))
	a.notifier.Notify(notice.Failure("Logout failed: " + err.Error()))

	return err
}
