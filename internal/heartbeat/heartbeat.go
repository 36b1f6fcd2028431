// Package heartbeat re-evaluates the effective credential on a fixed
// interval. It is the authoritative guest-expiry trigger: the first tick at
// or after a guest credential's expiry purges it and reports the transition.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/tonimelisma/screener-go/internal/auth"
)

// DefaultInterval is the tick interval when none is configured.
const DefaultInterval = time.Second

// Source evaluates the effective credential from local state. Peek must
// purge an expired guest credential and report it via State.ExpiredGuest.
// *auth.Resolver satisfies it.
type Source interface {
	Peek(ctx context.Context) auth.State
	Now() time.Time
}

// View is what one tick produced, ready for display.
type View struct {
	Identity string
	Kind     auth.Kind
	// Remaining is the whole seconds left on a guest credential, rounded
	// up. Nil for anything but a guest.
	Remaining *int
	At        time.Time
}

// Label is a short human-readable description of the view.
func (v View) Label() string {
	switch {
	case v.Remaining != nil:
		return fmt.Sprintf("%s (guest, %s left)", v.Identity, formatRemaining(*v.Remaining))
	case v.Kind == auth.KindDurable:
		return v.Identity
	default:
		return v.Identity + " (not signed in)"
	}
}

// ExpiryTransition reports that a guest credential ran out. It is an
// expected state change, not an error.
type ExpiryTransition struct {
	Identity string // the guest identity that expired
	At       time.Time
}

// Options configures a Heartbeat. All callbacks are optional and run on the
// ticking goroutine.
type Options struct {
	Interval time.Duration

	OnView           func(View)
	OnExpiry         func(ExpiryTransition)
	OnIdentityChange func(previous, current string)
}

// Heartbeat is the recurring evaluator. Ticks never overlap.
type Heartbeat struct {
	src    Source
	opts   Options
	logger *slog.Logger

	tickMu gosync.Mutex // serializes Tick

	mu       gosync.Mutex
	last     View
	hasLast  bool
	identity string
	// lastExpiry is the expiry of the guest seen by the previous tick.
	lastExpiry time.Time
}

// New creates a Heartbeat.
func New(src Source, opts Options, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	return &Heartbeat{src: src, opts: opts, logger: logger}
}

// Interval returns the tick interval.
func (h *Heartbeat) Interval() time.Duration {
	return h.opts.Interval
}

// Run ticks immediately and then once per interval until ctx is done. The
// timer is re-armed only after a tick has finished.
func (h *Heartbeat) Run(ctx context.Context) error {
	h.logger.Debug("heartbeat started", slog.Duration("interval", h.opts.Interval))

	h.Tick(ctx)

	timer := time.NewTimer(h.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("heartbeat stopped")
			return nil
		case <-timer.C:
			h.Tick(ctx)
			timer.Reset(h.opts.Interval)
		}
	}
}

// Tick runs one evaluation and fires the callbacks it implies.
func (h *Heartbeat) Tick(ctx context.Context) View {
	h.tickMu.Lock()
	defer h.tickMu.Unlock()

	st := h.src.Peek(ctx)
	now := h.src.Now()

	v := View{Identity: st.Identity, Kind: st.Kind, At: now}

	if left, ok := st.Remaining(now); ok {
		v.Remaining = &left
	}

	h.mu.Lock()
	prev, hadPrev := h.identity, h.hasLast
	prevView, prevExpiry := h.last, h.lastExpiry
	h.identity = v.Identity
	h.last = v
	h.hasLast = true
	h.lastExpiry = st.Expiry
	h.mu.Unlock()

	// A request resolved between ticks may already have purged the guest we
	// last showed. Its lapse is still ours to report.
	lapsed := hadPrev && prevView.Kind == auth.KindGuest && v.Kind != auth.KindGuest &&
		!prevExpiry.After(now)

	if st.ExpiredGuest || lapsed {
		expired := ExpiryTransition{At: now}
		if hadPrev && prevView.Kind == auth.KindGuest {
			expired.Identity = prevView.Identity
		}

		h.logger.Info("guest credential expired",
			slog.String("identity", expired.Identity),
			slog.Time("at", now),
		)

		if h.opts.OnExpiry != nil {
			h.opts.OnExpiry(expired)
		}
	}

	if hadPrev && prev != v.Identity {
		h.logger.Info("effective identity changed",
			slog.String("previous", prev),
			slog.String("current", v.Identity),
		)

		if h.opts.OnIdentityChange != nil {
			h.opts.OnIdentityChange(prev, v.Identity)
		}
	}

	if h.opts.OnView != nil {
		h.opts.OnView(v)
	}

	return v
}

// Last returns the most recent view, if any tick has run.
func (h *Heartbeat) Last() (View, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.last, h.hasLast
}

// formatRemaining renders seconds as "2m05s" or "45s".
func formatRemaining(secs int) string {
	if secs >= 60 {
		return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
	}

	return fmt.Sprintf("%ds", secs)
}
