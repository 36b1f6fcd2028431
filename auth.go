package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/screener-go/internal/app"
	"github.com/tonimelisma/screener-go/internal/auth"
)

func newLoginCmd() *cobra.Command {
	var guest bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with your account, or as a temporary guest",
		Long: `Sign in with your organization account using the device code flow.

With --guest, request a short-lived guest credential from the service instead.
A guest credential takes precedence over a signed-in account until it expires.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, guest)
		},
	}

	cmd.Flags().BoolVar(&guest, "guest", false, "sign in as a temporary guest")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the effective credential",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the effective identity and guest time remaining",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

// loginOutput is the JSON schema for `login --json`.
type loginOutput struct {
	Kind      string     `json:"kind"`
	Identity  string     `json:"identity"`
	Name      string     `json:"name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func runLogin(cmd *cobra.Command, guest bool) error {
	ctx := cmd.Context()
	cc := cliContextFrom(ctx)

	a, err := cc.openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer cc.closeApp(a)

	if guest {
		g, err := a.Auth.GuestLogin(ctx)
		if err != nil {
			return reported(err)
		}

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, loginOutput{
				Kind:      auth.KindGuest.String(),
				Identity:  auth.GuestIdentity(g.Token),
				ExpiresAt: &g.Expiry,
			})
		}

		cc.Statusf("Guest access expires at %s.\n", formatTime(g.Expiry, a.Resolver.Now()))

		return nil
	}

	acct, err := a.Auth.DurableLogin(ctx)
	if err != nil {
		return reported(err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, loginOutput{
			Kind:     auth.KindDurable.String(),
			Identity: acct.Identifier(),
			Name:     acct.Name,
		})
	}

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := cliContextFrom(ctx)

	a, err := cc.openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer cc.closeApp(a)

	return reported(a.SignOut(ctx))
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Identity         string     `json:"identity"`
	Kind             string     `json:"kind"`
	Authenticated    bool       `json:"authenticated"`
	Name             string     `json:"name,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RemainingSeconds *int       `json:"remaining_seconds,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := cliContextFrom(ctx)

	a, err := cc.openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer cc.closeApp(a)

	st := a.Resolver.Peek(ctx)
	if st.ExpiredGuest {
		cc.Statusf("Guest access expired.\n")
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, newWhoamiOutput(st, a.Resolver.Now()))
	}

	view := a.Heartbeat.Tick(ctx)
	fmt.Fprintln(cc.Stdout, view.Label())

	return nil
}

func newWhoamiOutput(st auth.State, now time.Time) whoamiOutput {
	out := whoamiOutput{
		Identity:      st.Identity,
		Kind:          st.Kind.String(),
		Authenticated: st.Kind != auth.KindNone,
	}

	if st.Account != nil {
		out.Name = st.Account.Name
	}

	if secs, ok := st.Remaining(now); ok {
		expiry := st.Expiry
		out.ExpiresAt = &expiry
		out.RemainingSeconds = &secs
	}

	return out
}
