package auth

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/screener-go/internal/credstore"
)

var errFake = errors.New("fake failure")

// fakeIdentity is a scripted IdentityProvider.
type fakeIdentity struct {
	mu gosync.Mutex

	accounts    []Account
	accountsErr error
	silentTok   string
	silentErr   error
	interAcct   Account
	interTok    string
	interErr    error
	signOutErr  error

	silentCalls  int
	interCalls   int
	signOutCalls int
}

func (f *fakeIdentity) Accounts(context.Context) ([]Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Account(nil), f.accounts...), f.accountsErr
}

func (f *fakeIdentity) AcquireTokenSilent(context.Context, Account) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.silentCalls++

	return f.silentTok, f.silentErr
}

func (f *fakeIdentity) AcquireTokenInteractive(context.Context) (Account, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.interCalls++

	if f.interErr != nil {
		return Account{}, "", f.interErr
	}

	f.accounts = append(f.accounts, f.interAcct)

	return f.interAcct, f.interTok, nil
}

func (f *fakeIdentity) SignOut(_ context.Context, acct Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.signOutCalls++

	if f.signOutErr != nil {
		return f.signOutErr
	}

	kept := f.accounts[:0]

	for _, a := range f.accounts {
		if a.HomeAccountID != acct.HomeAccountID {
			kept = append(kept, a)
		}
	}

	f.accounts = kept

	return nil
}

// fakeGuests is a scripted GuestService.
type fakeGuests struct {
	grant     GuestGrant
	issueErr  error
	revokeErr error

	issueCalls  int
	revokeCalls int
}

func (f *fakeGuests) IssueGuest(context.Context) (GuestGrant, error) {
	f.issueCalls++
	return f.grant, f.issueErr
}

func (f *fakeGuests) RevokeGuest(context.Context) error {
	f.revokeCalls++
	return f.revokeErr
}

// testClock is a settable clock.
type testClock struct {
	mu  gosync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}

var t0 = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *credstore.Store {
	t.Helper()

	s, err := credstore.Open(context.Background(), filepath.Join(t.TempDir(), "credentials.db"), slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func newTestResolver(t *testing.T, idp *fakeIdentity, interactive bool) (*Resolver, *credstore.Store, *testClock) {
	t.Helper()

	store := openStore(t)
	clock := &testClock{now: t0}

	r := NewResolver(store, idp, ResolverOptions{InteractiveFallback: interactive}, slog.Default())
	r.nowFunc = clock.Now

	return r, store, clock
}
