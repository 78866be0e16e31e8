package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/task"
)

// Styles holds the lipgloss styles used by human-readable output.
type Styles struct {
	Running lipgloss.Style
	Success lipgloss.Style
	Failed  lipgloss.Style
	Skipped lipgloss.Style
	Muted   lipgloss.Style
	Title   lipgloss.Style
}

// DefaultStyles returns the colour palette for terminal output.
func DefaultStyles() Styles {
	return Styles{
		Running: lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		Failed:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Skipped: lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Running: s, Success: s, Failed: s, Skipped: s, Muted: s, Title: s}
}

// PlainReporter prints one line per leaf transition and the output of
// running tasks, prefixed with the task name.
type PlainReporter struct {
	mu      sync.Mutex
	w       io.Writer
	styles  Styles
	streams map[string]*StreamWriter
}

// NewPlainReporter creates a line-oriented reporter writing to w.
func NewPlainReporter(w io.Writer, styles Styles) *PlainReporter {
	return &PlainReporter{
		w:       w,
		styles:  styles,
		streams: make(map[string]*StreamWriter),
	}
}

func (r *PlainReporter) Start(task.Plan) {}

func (r *PlainReporter) TaskChanged(ev task.Event) {
	if !ev.Task.Leaf {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := ev.Task.Name
	switch {
	case ev.To == task.StatusRunning:
		line := r.styles.Running.Render(SymbolRunning) + " " + name
		if cmd := ev.Task.Meta.Command; cmd != "" {
			line += "  " + r.styles.Muted.Render(cmd)
		}
		fmt.Fprintln(r.w, line)
	case ev.To == task.StatusSuccess:
		r.flush(name)
		fmt.Fprintf(r.w, "%s %s %s\n", r.styles.Success.Render(SymbolSuccess), name,
			r.styles.Muted.Render("("+FormatDuration(ev.Duration)+")"))
	case ev.Reason == task.ReasonError:
		r.flush(name)
		fmt.Fprintf(r.w, "%s %s\n", r.styles.Failed.Render(SymbolFailed), name)
	case ev.To == task.StatusFailed:
		fmt.Fprintf(r.w, "%s %s %s\n", r.styles.Skipped.Render(SymbolSkipped), name,
			r.styles.Muted.Render(string(ev.Reason)))
	}
}

// TaskOutput prints a line of task output.
func (r *PlainReporter) TaskOutput(t task.Info, _ exec.Stream, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sw, ok := r.streams[t.Name]
	if !ok {
		sw = NewStreamWriter(r.w, r.styles.Muted.Render(t.Name+" │"))
		r.streams[t.Name] = sw
	}
	_, _ = sw.Write([]byte(line + "\n"))
}

func (r *PlainReporter) Finish(s task.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.streams {
		r.flush(name)
	}
	WriteSummary(r.w, s, r.styles)
}

func (r *PlainReporter) flush(name string) {
	if sw, ok := r.streams[name]; ok {
		_ = sw.Flush()
		delete(r.streams, name)
	}
}

// WriteSummary prints the totals of a run and, for every failed task, its
// package, command and stderr.
func WriteSummary(w io.Writer, s task.Summary, styles Styles) {
	if s.Total == 0 {
		return
	}

	fmt.Fprintln(w)
	parts := []string{
		styles.Success.Render(fmt.Sprintf("%s %d succeeded", SymbolSuccess, s.Succeeded)),
	}
	if s.Failed > 0 {
		parts = append(parts, styles.Failed.Render(fmt.Sprintf("%s %d failed", SymbolFailed, s.Failed)))
	}
	if n := s.DependencyFailed + s.Skipped; n > 0 {
		parts = append(parts, styles.Skipped.Render(fmt.Sprintf("%s %d not run", SymbolSkipped, n)))
	}
	fmt.Fprintf(w, "%s %s\n", strings.Join(parts, "  "),
		styles.Muted.Render(fmt.Sprintf("%d tasks in %s", s.Total, FormatDuration(s.Duration))))

	if s.Cancelled {
		fmt.Fprintln(w, styles.Skipped.Render("Run cancelled"))
	}

	for _, f := range s.Failures {
		fmt.Fprintln(w)
		fmt.Fprintln(w, styles.Failed.Render(SymbolFailed+" "+f.Task.Name))
		if f.Task.Meta.Package != "" {
			fmt.Fprintf(w, "  package: %s\n", f.Task.Meta.Package)
		}
		if f.Task.Meta.Command != "" {
			fmt.Fprintf(w, "  command: %s\n", f.Task.Meta.Command)
		}
		if f.Err != nil {
			fmt.Fprintf(w, "  error:   %s\n", f.Err)
		}
		if f.Result != nil {
			if stderr := strings.TrimRight(f.Result.Stderr, "\n"); stderr != "" {
				fmt.Fprintln(w, "  stderr:")
				for _, line := range strings.Split(stderr, "\n") {
					fmt.Fprintln(w, "    "+line)
				}
			}
		}
	}
}
