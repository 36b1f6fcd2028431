package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/screener-go/internal/app"
	"github.com/tonimelisma/screener-go/internal/sessions"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage screening sessions",
		Long: `Manage the screening sessions of the effective identity.

Each identity has its own sessions and exactly one active session, which
receives uploads and is ranked.`,
	}

	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionCurrentCmd())
	cmd.AddCommand(newSessionCreateCmd())
	cmd.AddCommand(newSessionUseCmd())
	cmd.AddCommand(newSessionRenameCmd())
	cmd.AddCommand(newSessionDeleteCmd())
	cmd.AddCommand(newSessionFilesCmd())

	return cmd
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: withRegistry(nil, func(ctx context.Context, cc *CLIContext, reg *sessions.Registry, _ []string) error {
			if _, err := reg.GetActive(ctx); err != nil {
				return reported(err)
			}

			list, err := reg.List(ctx)
			if err != nil {
				return reported(err)
			}

			return printSessions(cc, list, reg.Snapshot().ActiveID)
		}),
	}
}

func newSessionCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the active session",
		Args:  cobra.NoArgs,
		RunE: withRegistry(nil, func(ctx context.Context, cc *CLIContext, reg *sessions.Registry, _ []string) error {
			id, err := reg.GetActive(ctx)
			if err != nil {
				return reported(err)
			}

			if cc.Flags.JSON {
				return printJSON(cc.Stdout, map[string]string{"active_id": id})
			}

			fmt.Fprintln(cc.Stdout, id)

			return nil
		}),
	}
}

func newSessionCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Create a session and make it active",
		Args:  cobra.ExactArgs(1),
		RunE: withRegistry(nil, func(ctx context.Context, cc *CLIContext, reg *sessions.Registry, args []string) error {
			id, err := reg.Create(ctx, args[0])
			if err != nil {
				return reported(err)
			}

			if cc.Flags.JSON {
				return printJSON(cc.Stdout, map[string]string{"session_id": id})
			}

			fmt.Fprintln(cc.Stdout, id)

			return nil
		}),
	}
}

func newSessionUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use ID",
		Short: "Make a session active",
		Args:  cobra.ExactArgs(1),
		RunE: withRegistry(nil, func(ctx context.Context, _ *CLIContext, reg *sessions.Registry, args []string) error {
			return reported(reg.SetActive(ctx, args[0]))
		}),
	}
}

func newSessionRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: withRegistry(nil, func(ctx context.Context, _ *CLIContext, reg *sessions.Registry, args []string) error {
			return reported(reg.Rename(ctx, args[0], args[1]))
		}),
	}
}

func newSessionDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a session and every resume in it",
		Args:  cobra.ExactArgs(1),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var confirm sessions.Confirmer = promptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
		if yes {
			confirm = sessions.ConfirmFunc(func(context.Context, sessions.Session) (bool, error) { return true, nil })
		}

		run := withRegistry(confirm, func(ctx context.Context, _ *CLIContext, reg *sessions.Registry, args []string) error {
			// Load the cache first so the prompt can name the session and a
			// deleted active session is noticed.
			if _, err := reg.GetActive(ctx); err != nil {
				return reported(err)
			}

			if _, err := reg.List(ctx); err != nil {
				return reported(err)
			}

			err := reg.Delete(ctx, args[0])
			if errors.Is(err, sessions.ErrDeleteDeclined) {
				return nil
			}

			return reported(err)
		})

		return run(cmd, args)
	}

	return cmd
}

func newSessionFilesCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "files ID",
		Short: "List the resumes stored in a session",
		Args:  cobra.ExactArgs(1),
		RunE: withRegistry(nil, func(ctx context.Context, cc *CLIContext, reg *sessions.Registry, args []string) error {
			files, err := reg.Files(ctx, args[0], prefix)
			if err != nil {
				return reported(err)
			}

			if cc.Flags.JSON {
				if files == nil {
					files = []string{}
				}

				return printJSON(cc.Stdout, files)
			}

			for _, f := range files {
				fmt.Fprintln(cc.Stdout, f)
			}

			return nil
		}),
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "only list files whose name starts with this prefix")

	return cmd
}

// registryFunc is the body of a session subcommand.
type registryFunc func(ctx context.Context, cc *CLIContext, reg *sessions.Registry, args []string) error

// withRegistry opens the app around fn. confirm may be nil for commands that
// never delete.
func withRegistry(confirm sessions.Confirmer, fn registryFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cc := cliContextFrom(ctx)

		a, err := cc.openApp(ctx, app.Options{Confirmer: confirm})
		if err != nil {
			return err
		}
		defer cc.closeApp(a)

		return fn(ctx, cc, a.Sessions, args)
	}
}

// sessionJSON is the JSON schema for one session in `session list --json`.
type sessionJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Created   string `json:"created"`
	FileCount int    `json:"file_count"`
	Active    bool   `json:"active"`
}

func printSessions(cc *CLIContext, list []sessions.Session, activeID string) error {
	if cc.Flags.JSON {
		out := make([]sessionJSON, 0, len(list))
		for _, s := range list {
			out = append(out, sessionJSON{
				ID:        s.ID,
				Name:      s.Name,
				Created:   s.Created,
				FileCount: s.FileCount,
				Active:    s.ID == activeID,
			})
		}

		return printJSON(cc.Stdout, out)
	}

	if len(list) == 0 {
		cc.Statusf("No sessions.\n")

		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, s := range list {
		marker := ""
		if s.ID == activeID {
			marker = "*"
		}

		rows = append(rows, []string{marker, s.ID, s.Name, strconv.Itoa(s.FileCount), s.Created})
	}

	printTable(cc.Stdout, []string{"", "ID", "NAME", "FILES", "CREATED"}, rows)

	return nil
}

// promptConfirmer asks on out and reads a yes/no answer from in. Anything
// but "y" or "yes" declines, including end of input.
func promptConfirmer(in io.Reader, out io.Writer) sessions.Confirmer {
	return sessions.ConfirmFunc(func(_ context.Context, s sessions.Session) (bool, error) {
		label := s.Name
		if label == "" {
			label = s.ID
		}

		fmt.Fprintf(out, "Delete session %q and its %d files? [y/N] ", label, s.FileCount)

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("reading confirmation: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	})
}
