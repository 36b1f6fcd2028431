// Package identity implements the durable sign-in capability on top of the
// OAuth2 device code flow. Each signed-in account is one token file under the
// accounts directory; listing accounts is a directory scan, and silent token
// acquisition is an oauth2 refresh whose result is written back to the file.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/tonimelisma/screener-go/internal/auth"
	"github.com/tonimelisma/screener-go/internal/tokenfile"
)

// DeviceAuth holds the device code response fields shown to the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// Options configures a Provider.
type Options struct {
	ClientID    string
	Tenant      string
	Scopes      []string
	AccountsDir string

	// Display shows the device code to the user. Required for interactive
	// sign-in.
	Display func(DeviceAuth)

	// Interactive reports whether a user is present to complete the device
	// flow. Defaults to checking whether stdin is a terminal.
	Interactive func() bool

	// HTTPClient is used for every token endpoint call. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Provider is the OAuth2-backed identity capability. Safe for concurrent use.
type Provider struct {
	cfg      *oauth2.Config
	dir      string
	display  func(DeviceAuth)
	interact func() bool
	client   *http.Client
	logger   *slog.Logger

	mu      gosync.Mutex
	sources map[string]oauth2.TokenSource // keyed by account file path
}

var _ auth.IdentityProvider = (*Provider)(nil)

// New creates a Provider against the Microsoft identity platform.
func New(opts Options, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}

	interact := opts.Interactive
	if interact == nil {
		interact = stdinIsTerminal
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	tenant := opts.Tenant
	if tenant == "" {
		tenant = "common"
	}

	return &Provider{
		cfg: &oauth2.Config{
			ClientID: opts.ClientID,
			Scopes:   append([]string(nil), opts.Scopes...),
			Endpoint: microsoft.AzureADEndpoint(tenant),
		},
		dir:      opts.AccountsDir,
		display:  opts.Display,
		interact: interact,
		client:   client,
		logger:   logger,
		sources:  make(map[string]oauth2.TokenSource),
	}
}

// Accounts lists signed-in accounts from disk, sorted by username.
// Unreadable account files are logged and skipped.
func (p *Provider) Accounts(_ context.Context) ([]auth.Account, error) {
	entries, err := tokenfile.List(p.dir, func(path string, err error) {
		p.logger.Warn("skipping unreadable account file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("identity: listing accounts: %w", err)
	}

	out := make([]auth.Account, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAccount(e.File.Account))
	}

	return out, nil
}

// AcquireTokenSilent returns an access token for account, refreshing it with
// the stored refresh token when needed. Refreshed tokens are persisted.
func (p *Provider) AcquireTokenSilent(_ context.Context, account auth.Account) (string, error) {
	if account.HomeAccountID == "" {
		return "", fmt.Errorf("identity: account %q has no home account ID", account.Identifier())
	}

	src, err := p.source(p.accountPath(account.HomeAccountID))
	if err != nil {
		return "", err
	}

	tok, err := src.Token()
	if err != nil {
		p.logger.Warn("silent token acquisition failed",
			slog.String("account", account.Identifier()),
			slog.String("error", err.Error()),
		)

		return "", fmt.Errorf("identity: refreshing token for %s: %w", account.Identifier(), err)
	}

	p.logger.Debug("token acquired",
		slog.String("account", account.Identifier()),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("valid", tok.Valid()),
	)

	return tok.AccessToken, nil
}

// AcquireTokenInteractive runs the device code flow and stores the new
// account. Returns auth.ErrInteractionRequired when no user is present.
func (p *Provider) AcquireTokenInteractive(ctx context.Context) (auth.Account, string, error) {
	if !p.interact() || p.display == nil {
		return auth.Account{}, "", auth.ErrInteractionRequired
	}

	return p.deviceLogin(p.oauthContext(ctx))
}

// SignOut removes the account's token file.
func (p *Provider) SignOut(_ context.Context, account auth.Account) error {
	path := p.accountPath(account.HomeAccountID)

	p.mu.Lock()
	delete(p.sources, path)
	p.mu.Unlock()

	if err := tokenfile.Remove(path); err != nil {
		return fmt.Errorf("identity: signing out %s: %w", account.Identifier(), err)
	}

	p.logger.Info("signed out", slog.String("account", account.Identifier()))

	return nil
}

func (p *Provider) deviceLogin(ctx context.Context) (auth.Account, string, error) {
	p.logger.Info("starting device code auth flow")

	da, err := p.cfg.DeviceAuth(ctx)
	if err != nil {
		return auth.Account{}, "", fmt.Errorf("identity: device auth request failed: %w", err)
	}

	p.display(DeviceAuth{UserCode: da.UserCode, VerificationURI: da.VerificationURI})

	tok, err := p.cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return auth.Account{}, "", fmt.Errorf("identity: device code authorization failed: %w", err)
	}

	c, err := claimsFromToken(tok)
	if err != nil {
		return auth.Account{}, "", err
	}

	meta := c.account()
	if meta.HomeAccountID == "" {
		return auth.Account{}, "", errors.New("identity: id_token carries no subject")
	}

	path := p.accountPath(meta.HomeAccountID)
	if err := tokenfile.Save(path, &tokenfile.File{Token: tok, Account: meta}); err != nil {
		return auth.Account{}, "", fmt.Errorf("identity: saving account: %w", err)
	}

	p.mu.Lock()
	delete(p.sources, path)
	p.mu.Unlock()

	p.logger.Info("login successful",
		slog.String("account", meta.Username),
		slog.Time("expiry", tok.Expiry),
	)

	return toAccount(meta), tok.AccessToken, nil
}

// source returns the cached token source for an account file, creating it
// on first use.
func (p *Provider) source(path string) (oauth2.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if src, ok := p.sources[path]; ok {
		return src, nil
	}

	f, err := tokenfile.Load(path)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	if f == nil {
		return nil, fmt.Errorf("identity: %w", auth.ErrNoAccount)
	}

	// The source outlives any single request, so it is bound to a
	// background context carrying only the HTTP client.
	src := p.refreshingConfig(path).TokenSource(p.oauthContext(context.Background()), f.Token)
	p.sources[path] = src

	return src, nil
}

// refreshingConfig is p.cfg with OnTokenChange persisting refreshed tokens.
func (p *Provider) refreshingConfig(path string) *oauth2.Config {
	cfg := *p.cfg

	cfg.OnTokenChange = func(tok *oauth2.Token) {
		if err := tokenfile.UpdateToken(path, tok); err != nil {
			p.logger.Warn("failed to persist refreshed token",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)

			return
		}

		p.logger.Info("persisted refreshed token",
			slog.String("path", path),
			slog.Time("new_expiry", tok.Expiry),
		)
	}

	return &cfg
}

func (p *Provider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

func (p *Provider) accountPath(homeAccountID string) string {
	return filepath.Join(p.dir, tokenfile.FileName(homeAccountID))
}

func toAccount(a tokenfile.Account) auth.Account {
	return auth.Account{HomeAccountID: a.HomeAccountID, Username: a.Username, Name: a.Name}
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
