// Package notice carries short, user-visible status messages from the core to
// whatever front end is attached (the CLI prints them to stderr). A notice is
// transient: nothing stores it and nothing reads it back.
package notice

import (
	"fmt"
	"io"
	gosync "sync"
)

// Level classifies a notice for display.
type Level int

const (
	LevelSuccess Level = iota
	LevelInfo
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelInfo:
		return "info"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Notice is a single transient message.
type Notice struct {
	Level   Level
	Title   string
	Message string
}

// Notifier receives notices. Implementations must not block.
type Notifier interface {
	Notify(n Notice)
}

// Func adapts a plain function to Notifier.
type Func func(Notice)

// Notify calls f(n).
func (f Func) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = Func(func(Notice) {})

// Success builds a success notice.
func Success(message string) Notice {
	return Notice{Level: LevelSuccess, Title: "Success", Message: message}
}

// Failure builds an error notice.
func Failure(message string) Notice {
	return Notice{Level: LevelError, Title: "Error", Message: message}
}

// Writer prints notices as single lines to w. Safe for concurrent use.
type Writer struct {
	mu    gosync.Mutex
	w     io.Writer
	quiet bool
}

// NewWriter returns a Writer. When quiet is set, only error notices are printed.
func NewWriter(w io.Writer, quiet bool) *Writer {
	return &Writer{w: w, quiet: quiet}
}

// Notify prints n.
func (nw *Writer) Notify(n Notice) {
	if nw.quiet && n.Level != LevelError {
		return
	}

	nw.mu.Lock()
	defer nw.mu.Unlock()

	fmt.Fprintf(nw.w, "%s: %s\n", n.Title, n.Message)
}

// Recorder keeps every notice in memory. Used by tests.
type Recorder struct {
	mu      gosync.Mutex
	notices []Notice
}

// Notify records n.
func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notices = append(r.notices, n)
}

// Notices returns a copy of everything recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Notice, len(r.notices))
	copy(out, r.notices)

	return out
}

// Count returns how many notices of the given level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, rec := range r.notices {
		if rec.Level == level {
			n++
		}
	}

	return n
}
