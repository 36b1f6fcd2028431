package auth

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	gosync "sync"
	"time"

	"github.com/tonimelisma/screener-go/internal/credstore"
)

// guestSuffixLen is how many trailing token characters form a guest identity.
const guestSuffixLen = 8

// guestIdentityPrefix marks identities derived from guest tokens.
const guestIdentityPrefix = "guest-"

// DefaultAnonymousIdentity is the identity sent when nobody is signed in and
// nothing is cached. Matches the server's own default for a missing header.
const DefaultAnonymousIdentity = "guest"

// Kind identifies which credential, if any, is effective.
type Kind int

const (
	KindNone Kind = iota
	KindGuest
	KindDurable
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "anonymous"
	case KindGuest:
		return "guest"
	case KindDurable:
		return "durable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Resolution is what one outbound request carries. Authorization is empty
// when no credential could be obtained; UserID is never empty.
type Resolution struct {
	Authorization string
	UserID        string
	Kind          Kind
}

// State is a local-only evaluation of the effective credential, used for
// display and by the heartbeat. It never triggers token acquisition.
type State struct {
	Kind     Kind
	Identity string
	Expiry   time.Time // guest only
	Account  *Account  // durable only

	// ExpiredGuest is set when this evaluation found an expired guest
	// credential and purged it.
	ExpiredGuest bool
}

// Remaining returns the whole seconds left before a guest credential
// expires, rounded up, and false for non-guest states. Zero means expired.
func (s State) Remaining(now time.Time) (int, bool) {
	if s.Kind != KindGuest {
		return 0, false
	}

	left := s.Expiry.Sub(now)
	if left <= 0 {
		return 0, true
	}

	return int(math.Ceil(left.Seconds())), true
}

// GuestIdentity derives the stable identity string for a guest token, so
// repeated resolutions within one guest session agree without extra storage.
func GuestIdentity(token string) string {
	if len(token) <= guestSuffixLen {
		return guestIdentityPrefix + token
	}

	return guestIdentityPrefix + token[len(token)-guestSuffixLen:]
}

// ResolverOptions tunes resolution.
type ResolverOptions struct {
	// AnonymousIdentity is the sentinel identity. Defaults to DefaultAnonymousIdentity.
	AnonymousIdentity string

	// InteractiveFallback allows one interactive acquisition after a silent
	// failure.
	InteractiveFallback bool

	// Now is the clock used for guest expiry. Defaults to time.Now.
	Now func() time.Time
}

// Resolver picks the credential and identity for each request. It is the
// only component that reads the guest credential on the request path, and
// it purges an expired guest credential as soon as it sees one.
type Resolver struct {
	store     CredentialStore
	identity  IdentityProvider
	anonymous string
	interact  bool
	logger    *slog.Logger

	nowFunc func() time.Time

	// interactMu keeps concurrent requests from opening several prompts.
	interactMu gosync.Mutex

	// lastSaved avoids rewriting the same last-known identity on every call.
	lastMu    gosync.Mutex
	lastSaved string
}

// NewResolver creates a Resolver.
func NewResolver(store CredentialStore, identity IdentityProvider, opts ResolverOptions, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	anon := opts.AnonymousIdentity
	if anon == "" {
		anon = DefaultAnonymousIdentity
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Resolver{
		store:     store,
		identity:  identity,
		anonymous: anon,
		interact:  opts.InteractiveFallback,
		logger:    logger,
		nowFunc:   now,
	}
}

// Resolve determines the Authorization header and identity for one request.
// Precedence: valid guest, then the first durable account (silent, then one
// interactive attempt), then the last-known or anonymous identity without
// credentials. Never fails.
func (r *Resolver) Resolve(ctx context.Context) Resolution {
	guest, _ := r.validGuest(ctx)
	if guest != nil {
		id := GuestIdentity(guest.Token)
		r.remember(ctx, id)

		return Resolution{Authorization: bearer(guest.Token), UserID: id, Kind: KindGuest}
	}

	accounts, err := r.identity.Accounts(ctx)
	if err != nil {
		r.logger.Warn("listing accounts failed, continuing anonymously",
			slog.String("error", err.Error()),
		)

		return r.anonymousResolution(ctx)
	}

	if len(accounts) == 0 {
		return r.anonymousResolution(ctx)
	}

	acct := accounts[0]

	tok, err := r.identity.AcquireTokenSilent(ctx, acct)
	if err == nil {
		return r.durableResolution(ctx, acct, tok)
	}

	r.logger.Warn("silent token acquisition failed",
		slog.String("account", acct.Identifier()),
		slog.String("error", err.Error()),
	)

	if !r.interact || ctx.Err() != nil {
		return r.anonymousResolution(ctx)
	}

	iacct, itok, err := r.acquireInteractive(ctx)
	if err != nil {
		credErr := &CredentialError{Op: "interactive", Account: acct.Identifier(), Err: err}
		r.logger.Warn("could not acquire token silently or interactively",
			slog.String("error", credErr.Error()),
		)

		return r.anonymousResolution(ctx)
	}

	if iacct.Identifier() == "" {
		iacct = acct
	}

	return r.durableResolution(ctx, iacct, itok)
}

// Headers adapts Resolve to the API client's header source.
func (r *Resolver) Headers(ctx context.Context) (authorization, userID string) {
	res := r.Resolve(ctx)
	return res.Authorization, res.UserID
}

// Peek evaluates the effective credential from local state only. An expired
// guest credential is purged here too.
func (r *Resolver) Peek(ctx context.Context) State {
	guest, expired := r.validGuest(ctx)
	if guest != nil {
		return State{Kind: KindGuest, Identity: GuestIdentity(guest.Token), Expiry: guest.Expiry}
	}

	accounts, err := r.identity.Accounts(ctx)
	if err == nil && len(accounts) > 0 {
		acct := accounts[0]
		return State{Kind: KindDurable, Identity: acct.Identifier(), Account: &acct, ExpiredGuest: expired}
	}

	if err != nil {
		r.logger.Debug("listing accounts failed during peek", slog.String("error", err.Error()))
	}

	return State{Kind: KindNone, Identity: r.fallbackIdentity(ctx), ExpiredGuest: expired}
}

// IsAuthenticated reports whether any credential is currently effective.
func (r *Resolver) IsAuthenticated(ctx context.Context) bool {
	return r.Peek(ctx).Kind != KindNone
}

// Now returns the resolver's clock reading.
func (r *Resolver) Now() time.Time {
	return r.nowFunc()
}

// ExpireGuest purges the guest credential and, when the cached last-known
// identity belongs to that guest, forgets it as well. Safe to call when no
// guest credential exists.
func (r *Resolver) ExpireGuest(ctx context.Context, token string) error {
	if err := r.store.PurgeGuest(ctx); err != nil {
		return fmt.Errorf("auth: purging guest credential: %w", err)
	}

	if token == "" {
		return nil
	}

	last, err := r.store.LastIdentity(ctx)
	if err != nil {
		return fmt.Errorf("auth: reading last identity: %w", err)
	}

	if last == GuestIdentity(token) {
		if err := r.store.ClearLastIdentity(ctx); err != nil {
			return fmt.Errorf("auth: clearing last identity: %w", err)
		}

		r.forget()
	}

	return nil
}

// validGuest returns the stored guest credential when it is still valid.
// An expired one is purged and reported through the second return value.
func (r *Resolver) validGuest(ctx context.Context) (*credstore.Guest, bool) {
	g, err := r.store.Guest(ctx)
	if err != nil {
		r.logger.Warn("reading guest credential failed", slog.String("error", err.Error()))
		return nil, false
	}

	if g == nil {
		return nil, false
	}

	if g.Valid(r.nowFunc()) {
		return g, false
	}

	r.logger.Info("guest credential expired, purging",
		slog.Time("expiry", g.Expiry),
	)

	if err := r.ExpireGuest(ctx, g.Token); err != nil {
		r.logger.Warn("purging expired guest credential failed", slog.String("error", err.Error()))
	}

	return nil, true
}

func (r *Resolver) acquireInteractive(ctx context.Context) (Account, string, error) {
	r.interactMu.Lock()
	defer r.interactMu.Unlock()

	return r.identity.AcquireTokenInteractive(ctx)
}

func (r *Resolver) durableResolution(ctx context.Context, acct Account, tok string) Resolution {
	id := acct.Identifier()
	r.remember(ctx, id)

	return Resolution{Authorization: bearer(tok), UserID: id, Kind: KindDurable}
}

func (r *Resolver) anonymousResolution(ctx context.Context) Resolution {
	return Resolution{UserID: r.fallbackIdentity(ctx), Kind: KindNone}
}

// fallbackIdentity is the last-known identity, else the anonymous sentinel.
func (r *Resolver) fallbackIdentity(ctx context.Context) string {
	last, err := r.store.LastIdentity(ctx)
	if err != nil {
		r.logger.Warn("reading last identity failed", slog.String("error", err.Error()))
	}

	if last != "" {
		return last
	}

	return r.anonymous
}

// remember caches id as the last-known identity. Failures are logged only.
func (r *Resolver) remember(ctx context.Context, id string) {
	r.lastMu.Lock()
	defer r.lastMu.Unlock()

	if id == r.lastSaved {
		return
	}

	if err := r.store.SaveLastIdentity(ctx, id); err != nil {
		r.logger.Warn("caching last identity failed", slog.String("error", err.Error()))
		return
	}

	r.lastSaved = id
}

func (r *Resolver) forget() {
	r.lastMu.Lock()
	defer r.lastMu.Unlock()

	r.lastSaved = ""
}

func bearer(tok string) string {
	return "Bearer " + tok
}
