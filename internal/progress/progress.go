// Package progress reports scheduler events to the terminal or to a
// machine-readable stream.
package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/task"
)

// Status symbols shared by every human-readable sink.
const (
	SymbolRunning = "▶"
	SymbolSuccess = "✓"
	SymbolFailed  = "✗"
	SymbolSkipped = "⊘"
)

// OutputObserver is implemented by sinks that display the output lines of
// running tasks.
type OutputObserver interface {
	TaskOutput(t task.Info, stream exec.Stream, line string)
}

// LineHandler returns an exec line callback that forwards output of t to
// obs, or nil when obs does not display output.
func LineHandler(obs task.Observer, t task.Info) func(exec.Stream, string) {
	out, ok := obs.(OutputObserver)
	if !ok {
		return nil
	}
	return func(stream exec.Stream, line string) {
		out.TaskOutput(t, stream, line)
	}
}

// Symbol returns the glyph for a terminal leaf event.
func Symbol(status task.Status, reason task.Reason) string {
	switch {
	case status == task.StatusRunning:
		return SymbolRunning
	case status == task.StatusSuccess:
		return SymbolSuccess
	case reason == task.ReasonError:
		return SymbolFailed
	default:
		return SymbolSkipped
	}
}

// Bar renders a fixed-width completion bar.
func Bar(done, total, width int) string {
	if width <= 0 {
		return ""
	}
	filled := width
	if total > 0 {
		filled = width * done / total
	}
	filled = max(0, min(filled, width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	return fmt.Sprintf("%dm%ds", m, s)
}
