package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/screener-go/internal/app"
	"github.com/tonimelisma/screener-go/internal/heartbeat"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show the effective identity and guest countdown until interrupted",
		Long: `Show the effective identity, refreshed every heartbeat interval.

On a terminal the line is redrawn in place; otherwise one line is printed per
change. A guest credential that runs out is reported once and dropped.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	display := newViewPrinter(cc.Stdout, isTerminal(cc.Stdout))

	a, err := cc.openApp(ctx, app.Options{
		OnView: display.show,
		OnExpiry: func(tr heartbeat.ExpiryTransition) {
			display.event(expiryMessage(tr))
		},
	})
	if err != nil {
		return err
	}
	defer cc.closeApp(a)

	err = a.RunHeartbeat(ctx)
	display.finish()

	if ctx.Err() != nil {
		return nil
	}

	return err
}

func expiryMessage(tr heartbeat.ExpiryTransition) string {
	if tr.Identity == "" {
		return "Guest access expired."
	}

	return fmt.Sprintf("Guest access for %s expired.", tr.Identity)
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// viewPrinter renders heartbeat views. On a terminal it rewrites one line;
// otherwise it prints a line only when the identity changes, so logs are not
// flooded with one countdown line per tick.
type viewPrinter struct {
	w   io.Writer
	tty bool
	key string
	// drawn is the width of the line currently on screen (tty only).
	drawn int
}

func newViewPrinter(w io.Writer, tty bool) *viewPrinter {
	return &viewPrinter{w: w, tty: tty}
}

// show is called on the heartbeat goroutine only.
func (p *viewPrinter) show(v heartbeat.View) {
	if p.tty {
		p.redraw(v.Label())

		return
	}

	key := v.Kind.String() + " " + v.Identity
	if key == p.key {
		return
	}

	p.key = key
	fmt.Fprintln(p.w, v.Label())
}

func (p *viewPrinter) event(msg string) {
	if p.tty && p.drawn > 0 {
		fmt.Fprint(p.w, "\r"+strings.Repeat(" ", p.drawn)+"\r")
		p.drawn = 0
	}

	p.key = ""
	fmt.Fprintln(p.w, msg)
}

func (p *viewPrinter) redraw(label string) {
	pad := ""
	if n := p.drawn - len(label); n > 0 {
		pad = strings.Repeat(" ", n)
	}

	fmt.Fprint(p.w, "\r"+label+pad)
	p.drawn = len(label)
}

// finish ends an in-place line so the shell prompt starts on a fresh one.
func (p *viewPrinter) finish() {
	if p.tty && p.drawn > 0 {
		fmt.Fprintln(p.w)
		p.drawn = 0
	}
}
