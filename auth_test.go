package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/screener-go/internal/auth"
	"github.com/tonimelisma/screener-go/internal/testsrv"
)

func TestWhoami_AnonymousMakesNoCalls(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")

	out := h.mustRun(t, "whoami")

	assert.Equal(t, "guest (not signed in)\n", out)
	assert.Zero(t, h.srv.TotalCalls())
}

func TestWhoami_JSONAnonymous(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")

	out := h.mustRun(t, "--json", "whoami")

	var got whoamiOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, "guest", got.Identity)
	assert.Equal(t, "anonymous", got.Kind)
	assert.False(t, got.Authenticated)
	assert.Nil(t, got.RemainingSeconds)
	assert.Nil(t, got.ExpiresAt)
}

func TestWhoami_CustomAnonymousIdentity(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "\n[service]\nanonymous_identity = \"visitor\"\n")

	out := h.mustRun(t, "whoami")
	assert.Equal(t, "visitor (not signed in)\n", out)
}

func TestLogin_Guest(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")

	_, stderr, err := h.run(t, "", "login", "--guest")
	require.NoError(t, err)

	assert.Contains(t, stderr, "Signed in as guest (guest-")
	assert.Contains(t, stderr, "Guest access expires at")
	assert.Equal(t, 1, h.srv.Calls(testsrv.RouteGuestLogin))

	// The credential survives the process: a later whoami sees it.
	out := h.mustRun(t, "whoami")
	assert.True(t, strings.HasPrefix(out, "guest-"), out)
	assert.Contains(t, out, "(guest, ")
	assert.Contains(t, out, " left)")
}

func TestLogin_GuestJSON(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")

	out := h.mustRun(t, "--json", "login", "--guest")

	var got loginOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, "guest", got.Kind)
	assert.True(t, strings.HasPrefix(got.Identity, "guest-"))
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(testsrv.DefaultGuestTTL), *got.ExpiresAt, 30*time.Second)

	who := h.mustRun(t, "--json", "whoami")

	var state whoamiOutput
	require.NoError(t, json.Unmarshal([]byte(who), &state))

	assert.Equal(t, got.Identity, state.Identity)
	assert.Equal(t, "guest", state.Kind)
	assert.True(t, state.Authenticated)
	require.NotNil(t, state.RemainingSeconds)
	assert.InDelta(t, testsrv.DefaultGuestTTL.Seconds(), *state.RemainingSeconds, 30)
}

func TestLogin_GuestFailureIsReportedOnce(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	h.srv.FailNext(testsrv.RouteGuestLogin, http.StatusInternalServerError, "guest issuance offline")

	_, stderr, err := h.run(t, "", "login", "--guest")
	require.Error(t, err)

	var shown reportedError
	assert.True(t, errors.As(err, &shown), "failure was already shown as a notice")
	assert.Equal(t, 1, strings.Count(stderr, "Login failed"))
	assert.Equal(t, 1, h.srv.Calls(testsrv.RouteGuestLogin), "no retry")

	out := h.mustRun(t, "whoami")
	assert.Equal(t, "guest (not signed in)\n", out)
}

func TestLogout_Guest(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	h.mustRun(t, "login", "--guest")

	_, stderr, err := h.run(t, "", "logout")
	require.NoError(t, err)

	assert.Contains(t, stderr, "Signed out")
	assert.Equal(t, 1, h.srv.Calls(testsrv.RouteGuestLogout))

	out := h.mustRun(t, "--json", "whoami")

	var state whoamiOutput
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, "anonymous", state.Kind)
	assert.Equal(t, "guest", state.Identity)
}

func TestLogout_QuietSuppressesSuccess(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	h.mustRun(t, "login", "--guest")

	_, stderr, err := h.run(t, "", "--quiet", "logout")
	require.NoError(t, err)
	assert.Empty(t, stderr)
}

func TestGuestScopesRequests(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	h.mustRun(t, "--json", "login", "--guest")
	h.srv.ResetCalls()

	h.mustRun(t, "session", "current")

	reqs := h.srv.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasPrefix(reqs[0].UserID, "guest-"))
	assert.True(t, strings.HasPrefix(reqs[0].Authorization, "Bearer guest-token-"))
	assert.NotEmpty(t, reqs[0].RequestID)
}

func TestNewWhoamiOutput(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	guest := newWhoamiOutput(auth.State{
		Kind:     auth.KindGuest,
		Identity: "guest-abcdefgh",
		Expiry:   now.Add(90*time.Second + 200*time.Millisecond),
	}, now)

	require.NotNil(t, guest.RemainingSeconds)
	assert.Equal(t, 91, *guest.RemainingSeconds)
	assert.True(t, guest.Authenticated)

	durable := newWhoamiOutput(auth.State{
		Kind:     auth.KindDurable,
		Identity: "ada@example.com",
		Account:  &auth.Account{Username: "ada@example.com", Name: "Ada"},
	}, now)

	assert.Equal(t, "Ada", durable.Name)
	assert.Equal(t, "durable", durable.Kind)
	assert.Nil(t, durable.RemainingSeconds)
	assert.Nil(t, durable.ExpiresAt)
}
