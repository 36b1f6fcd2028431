package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/screener-go/internal/app"
	"github.com/tonimelisma/screener-go/internal/config"
	"github.com/tonimelisma/screener-go/internal/identity"
	"github.com/tonimelisma/screener-go/internal/notice"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the persistent flags. Bound per root command so tests can
// build independent command trees.
type CLIFlags struct {
	ConfigPath string
	APIURL     string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext is what every subcommand receives from the root pre-run phase.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Config
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext stored by PersistentPreRunE.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:     "screener-go",
		Short:   "Resume screener CLI client",
		Long:    "A command-line client for the resume screening service.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			cc := &CLIContext{
				Flags:  flags,
				Cfg:    cfg,
				Logger: buildLogger(cfg, flags, cmd.ErrOrStderr()),
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.APIURL, "api-url", "", "screening service base URL")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable info logging")
	pf.BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newRankCmd())
	cmd.AddCommand(newInsightsCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer override
// chain: defaults, config file, environment, flags.
func loadConfig(flags CLIFlags) (*config.Config, error) {
	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		APIURL:     flags.APIURL,
	}

	cfg, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose, --debug
// and --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Config, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	switch {
	case flags.Debug:
		level = slog.LevelDebug
	case flags.Verbose:
		level = slog.LevelInfo
	case flags.Quiet:
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openApp builds the application context for one command. Notices go to
// stderr; device codes for interactive sign-in are shown there too.
func (cc *CLIContext) openApp(ctx context.Context, opts app.Options) (*app.App, error) {
	opts.Logger = cc.Logger

	if opts.Notifier == nil {
		opts.Notifier = notice.NewWriter(cc.Stderr, cc.Flags.Quiet)
	}

	if opts.Display == nil {
		opts.Display = cc.showDeviceCode
	}

	a, err := app.New(ctx, cc.Cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("starting: %w", err)
	}

	return a, nil
}

func (cc *CLIContext) showDeviceCode(da identity.DeviceAuth) {
	fmt.Fprintf(cc.Stderr, "To sign in, open %s and enter the code %s\n", da.VerificationURI, da.UserCode)
}

// closeApp releases the app, logging rather than failing on error.
func (cc *CLIContext) closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		cc.Logger.Warn("closing", slog.String("error", err.Error()))
	}
}

// reportedError marks an error the notice writer has already shown, so main
// exits without printing it a second time.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}

	return reportedError{err: err}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
