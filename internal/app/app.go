// Package app owns every long-lived component of a screener-go process and
// wires them together. Nothing here is global: callers create an App, use
// its components, and Close it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tonimelisma/screener-go/internal/api"
	"github.com/tonimelisma/screener-go/internal/auth"
	"github.com/tonimelisma/screener-go/internal/config"
	"github.com/tonimelisma/screener-go/internal/credstore"
	"github.com/tonimelisma/screener-go/internal/heartbeat"
	"github.com/tonimelisma/screener-go/internal/identity"
	"github.com/tonimelisma/screener-go/internal/notice"
	"github.com/tonimelisma/screener-go/internal/sessions"
)

// Options carries the front end's collaborators. Every field is optional.
type Options struct {
	Logger    *slog.Logger
	Notifier  notice.Notifier
	Confirmer sessions.Confirmer

	// Display shows a device code during interactive sign-in.
	Display func(identity.DeviceAuth)

	// Interactive reports whether a user can complete interactive sign-in.
	Interactive func() bool

	// HTTPClient overrides the client built from the network settings.
	HTTPClient *http.Client

	// IdentityProvider overrides the OAuth2 provider.
	IdentityProvider auth.IdentityProvider

	// Now overrides the clock used for guest expiry.
	Now func() time.Time

	OnView   func(heartbeat.View)
	OnExpiry func(heartbeat.ExpiryTransition)

	// OnActiveSession runs when the cached active session changes. The
	// ID is empty when the pointer is cleared.
	OnActiveSession func(id string)
}

// App is the application context.
type App struct {
	Config    *config.Config
	Store     *credstore.Store
	Identity  auth.IdentityProvider
	Resolver  *auth.Resolver
	Client    *api.Client
	Auth      *auth.Authenticator
	Sessions  *sessions.Registry
	Heartbeat *heartbeat.Heartbeat

	logger *slog.Logger
}

// New opens the credential store and builds every component from cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := credstore.Open(ctx, config.CredentialStorePath(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg)
	}

	idp := opts.IdentityProvider
	if idp == nil {
		idp = identity.New(identity.Options{
			ClientID:    cfg.Identity.ClientID,
			Tenant:      cfg.Identity.Tenant,
			Scopes:      cfg.Identity.Scopes,
			AccountsDir: config.AccountsDir(cfg),
			Display:     opts.Display,
			Interactive: opts.Interactive,
			HTTPClient:  httpClient,
		}, logger)
	}

	resolver := auth.NewResolver(store, idp, auth.ResolverOptions{
		AnonymousIdentity:   cfg.Service.AnonymousIdentity,
		InteractiveFallback: cfg.Identity.InteractiveFallback,
		Now:                 opts.Now,
	}, logger)

	client := api.NewClient(cfg.Service.APIURL, httpClient, resolver, logger,
		api.WithMaxRetries(cfg.Network.MaxRetries),
		api.WithUserAgent(cfg.Network.UserAgent),
	)

	registry := sessions.NewRegistry(client, opts.Confirmer, opts.Notifier, logger)
	registry.OnActiveChange(func(id string) {
		logger.Debug("active session changed", slog.String("session_id", id))

		if opts.OnActiveSession != nil {
			opts.OnActiveSession(id)
		}
	})

	a := &App{
		Config:   cfg,
		Store:    store,
		Identity: idp,
		Resolver: resolver,
		Client:   client,
		Auth:     auth.NewAuthenticator(resolver, guestService{client}, opts.Notifier, logger),
		Sessions: registry,
		logger:   logger,
	}

	a.Heartbeat = heartbeat.New(resolver, heartbeat.Options{
		Interval: cfg.HeartbeatInterval(),
		OnView:   opts.OnView,
		OnExpiry: opts.OnExpiry,
		OnIdentityChange: func(previous, current string) {
			logger.Info("identity changed, dropping session cache",
				slog.String("previous", previous),
				slog.String("current", current),
			)
			registry.Reset()
		},
	}, logger)

	return a, nil
}

// RunHeartbeat runs the heartbeat until ctx is done.
func (a *App) RunHeartbeat(ctx context.Context) error {
	return a.Heartbeat.Run(ctx)
}

// SignOut ends the effective credential and drops the session cache, which
// belonged to the identity that just went away.
func (a *App) SignOut(ctx context.Context) error {
	err := a.Auth.Logout(ctx)
	a.Sessions.Reset()

	return err
}

// Close releases the credential store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}

	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	return nil
}

// guestService adapts the API client to auth.GuestService.
type guestService struct {
	client *api.Client
}

func (g guestService) IssueGuest(ctx context.Context) (auth.GuestGrant, error) {
	tok, err := g.client.IssueGuest(ctx)
	if err != nil {
		return auth.GuestGrant{}, err
	}

	return auth.GuestGrant{Token: tok.AccessToken, ExpiresAt: tok.ExpiresAt.Time}, nil
}

func (g guestService) RevokeGuest(ctx context.Context) error {
	return g.client.RevokeGuest(ctx)
}

// newHTTPClient applies the configured timeouts. The connect timeout bounds
// dialing; the data timeout bounds the whole exchange.
func newHTTPClient(cfg *config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout()}).DialContext

	return &http.Client{Transport: transport, Timeout: cfg.DataTimeout()}
}
