// Package tui contains the interactive terminal views: the live task
// display and the confirmation prompts.
package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/rman/internal/progress"
	"github.com/felixgeelhaar/rman/internal/task"
)

const barWidth = 30

type (
	planMsg   struct{ plan task.Plan }
	eventMsg  struct{ ev task.Event }
	finishMsg struct{ summary task.Summary }
)

// row is one package (or standalone task) in the live view.
type row struct {
	name    string
	total   int
	done    int
	running int
	failed  bool
	skipped bool
	current string
}

func (r *row) status() task.Status {
	switch {
	case r.total > 0 && r.done == r.total:
		if r.failed || r.skipped {
			return task.StatusFailed
		}
		return task.StatusSuccess
	case r.running > 0:
		return task.StatusRunning
	case r.failed:
		return task.StatusFailed
	default:
		return task.StatusIdle
	}
}

// Model is the bubbletea model of a running task tree.
type Model struct {
	title     string
	rows      []*row
	index     map[string]*row
	total     int
	done      int
	started   time.Time
	finished  bool
	spinner   spinner.Model
	styles    progress.Styles
	interrupt func()
}

// NewModel creates the live view model. interrupt is called when the user
// presses ctrl+c, since the terminal is in raw mode and no signal arrives.
func NewModel(title string, interrupt func()) Model {
	styles := progress.DefaultStyles()
	return Model{
		title:     title,
		index:     make(map[string]*row),
		started:   time.Now(),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Running)),
		styles:    styles,
		interrupt: interrupt,
	}
}

func rowKey(t task.Info) string {
	if t.Meta.Package != "" {
		return t.Meta.Package
	}
	return t.Name
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && m.interrupt != nil {
			m.interrupt()
		}
		return m, nil

	case planMsg:
		m.started = msg.plan.Started
		m.total = len(msg.plan.Leaves)
		for _, leaf := range msg.plan.Leaves {
			key := rowKey(leaf)
			r, ok := m.index[key]
			if !ok {
				r = &row{name: key}
				m.index[key] = r
				m.rows = append(m.rows, r)
			}
			r.total++
		}
		return m, nil

	case eventMsg:
		m.apply(msg.ev)
		return m, nil

	case finishMsg:
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) apply(ev task.Event) {
	if !ev.Task.Leaf {
		return
	}
	r, ok := m.index[rowKey(ev.Task)]
	if !ok {
		return
	}

	switch {
	case ev.To == task.StatusRunning:
		r.running++
		r.current = ev.Task.Meta.Command
		if r.current == "" {
			r.current = ev.Task.Name
		}
	case ev.To.Terminal():
		if ev.From == task.StatusRunning {
			r.running--
		}
		r.done++
		m.done++
		if ev.To == task.StatusFailed {
			if ev.Reason == task.ReasonError {
				r.failed = true
			} else {
				r.skipped = true
			}
		}
		if r.running == 0 {
			r.current = ""
		}
	}
}

func (m Model) View() string {
	var b strings.Builder

	elapsed := progress.FormatDuration(time.Since(m.started))
	b.WriteString(m.styles.Title.Render(m.title) + " " + m.styles.Muted.Render(elapsed) + "\n\n")

	width := 0
	for _, r := range m.rows {
		width = max(width, lipgloss.Width(r.name))
	}

	for _, r := range m.rows {
		b.WriteString(m.renderRow(r, width))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(progress.Bar(m.done, m.total, barWidth))
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" %d/%d", m.done, m.total)))
	if !m.finished {
		b.WriteString(m.styles.Muted.Render("  ctrl+c to cancel"))
	}
	b.WriteString("\n")

	return b.String()
}

func (m Model) renderRow(r *row, width int) string {
	var glyph string
	switch r.status() {
	case task.StatusRunning:
		glyph = m.spinner.View()
	case task.StatusSuccess:
		glyph = m.styles.Success.Render(progress.SymbolSuccess)
	case task.StatusFailed:
		if r.failed {
			glyph = m.styles.Failed.Render(progress.SymbolFailed)
		} else {
			glyph = m.styles.Skipped.Render(progress.SymbolSkipped)
		}
	default:
		glyph = m.styles.Muted.Render("·")
	}

	name := r.name + strings.Repeat(" ", width-lipgloss.Width(r.name))
	line := fmt.Sprintf("%s %s  %s", glyph, name, m.styles.Muted.Render(fmt.Sprintf("%d/%d", r.done, r.total)))
	if r.current != "" {
		line += "  " + m.styles.Muted.Render(r.current)
	}
	return line
}

// Live is a task.Observer that drives the bubbletea live view. It must be
// wrapped with progress.Async, since Send blocks until the program reads.
type Live struct {
	model   Model
	out     io.Writer
	opts    []tea.ProgramOption
	program *tea.Program
	done    chan struct{}
	once    sync.Once
	err     error
}

// NewLive creates a live view writing to out.
func NewLive(title string, out io.Writer, interrupt func(), opts ...tea.ProgramOption) *Live {
	return &Live{
		model: NewModel(title, interrupt),
		out:   out,
		opts:  append([]tea.ProgramOption{tea.WithOutput(out)}, opts...),
		done:  make(chan struct{}),
	}
}

func (l *Live) start() {
	l.once.Do(func() {
		l.program = tea.NewProgram(l.model, l.opts...)
		go func() {
			defer close(l.done)
			_, l.err = l.program.Run()
		}()
	})
}

func (l *Live) Start(plan task.Plan) {
	l.start()
	l.program.Send(planMsg{plan: plan})
}

func (l *Live) TaskChanged(ev task.Event) {
	l.start()
	l.program.Send(eventMsg{ev: ev})
}

// Finish stops the program and prints the run summary below the final
// frame.
func (l *Live) Finish(summary task.Summary) {
	l.start()
	l.program.Send(finishMsg{summary: summary})
	<-l.done
	progress.WriteSummary(l.out, summary, progress.DefaultStyles())
}

// Err returns the error the program exited with, if any.
func (l *Live) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}
