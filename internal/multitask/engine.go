// Package multitask runs per-package work for the execution commands.
//
// Commands supply a Builder that turns packages into task trees; the Engine
// schedules them, picks a reporter and returns the summary.
package multitask

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/log"
	"github.com/felixgeelhaar/rman/internal/progress"
	"github.com/felixgeelhaar/rman/internal/task"
	"github.com/felixgeelhaar/rman/internal/tui"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

// Builder prepares the tasks of one command.
type Builder interface {
	PrepareTasks(ctx context.Context, pkgs []*workspace.Package) ([]*task.Task, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, pkgs []*workspace.Package) ([]*task.Task, error)

func (f BuilderFunc) PrepareTasks(ctx context.Context, pkgs []*workspace.Package) ([]*task.Task, error) {
	return f(ctx, pkgs)
}

// Options configures a run.
type Options struct {
	// Name labels the root task, e.g. "run build".
	Name string

	Concurrency int
	Bail        bool

	// JSON selects the JSON lines reporter.
	JSON bool

	// Interactive selects the live view. It should only be set on a
	// terminal outside CI.
	Interactive bool

	// Color enables styled output in the plain reporter.
	Color bool
}

// Engine runs Builder output through the scheduler.
type Engine struct {
	runner *exec.Runner
	logger *log.Logger
	out    io.Writer
	opts   Options

	observer task.Observer
}

// New creates an engine writing reporter output to out.
func New(runner *exec.Runner, logger *log.Logger, out io.Writer, opts Options) *Engine {
	if logger == nil {
		logger = log.Discard()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Engine{
		runner:   runner,
		logger:   logger,
		out:      out,
		opts:     opts,
		observer: task.NopObserver{},
	}
}

// Runner returns the command runner actions execute with.
func (e *Engine) Runner() *exec.Runner {
	return e.runner
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *log.Logger {
	return e.logger
}

// Options returns the run options.
func (e *Engine) Options() Options {
	return e.opts
}

// Command returns an action running command in meta.Dir. Output lines are
// forwarded to the reporter of the current run.
func (e *Engine) Command(name string, meta task.Meta, args ...string) task.Action {
	info := task.Info{Name: name, Leaf: true, Meta: meta}
	return func(ctx context.Context) (*exec.Result, error) {
		return e.runner.Run(ctx, meta.Command, exec.Options{
			Dir:          meta.Dir,
			Args:         args,
			OnLine:       progress.LineHandler(e.observer, info),
			AllowFailure: true,
		})
	}
}

// Run prepares the tasks for pkgs and executes them. Task failures are
// returned as the summary error.
func (e *Engine) Run(ctx context.Context, b Builder, pkgs []*workspace.Package) (task.Summary, error) {
	tasks, err := b.PrepareTasks(ctx, pkgs)
	if err != nil {
		return task.Summary{}, err
	}

	leaves, groups := count(tasks)
	if leaves == 0 {
		e.logger.Info("there is no task to process", "command", e.opts.Name)
		return task.Summary{}, nil
	}
	e.logger.InfoContext(ctx, "processing tasks", "command", e.opts.Name, "commands", leaves, "packages", groups)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	async := progress.Async(e.reporter(cancel))
	e.observer = async

	root := task.NewGroup(e.opts.Name, tasks...)
	summary := task.New(root, task.Options{
		Concurrency: e.opts.Concurrency,
		Bail:        e.opts.Bail,
		Observer:    async,
		Logger:      e.logger,
	}).Run(ctx)

	async.Close()
	e.observer = task.NopObserver{}

	e.logger.Debug("run finished",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.Duration)
	return summary, summary.Err()
}

func (e *Engine) reporter(interrupt func()) task.Observer {
	switch {
	case e.opts.JSON:
		return progress.NewJSONReporter(e.out)
	case e.opts.Interactive:
		return tui.NewLive("rman "+e.opts.Name, e.out, interrupt)
	case e.opts.Color:
		return progress.NewPlainReporter(e.out, progress.DefaultStyles())
	default:
		return progress.NewPlainReporter(e.out, progress.PlainStyles())
	}
}

func count(tasks []*task.Task) (leaves, groups int) {
	for _, t := range tasks {
		if !t.IsLeaf() {
			groups++
		}
		t.Walk(func(n *task.Task) bool {
			if n.IsLeaf() {
				leaves++
			}
			return true
		})
	}
	return leaves, groups
}

// quote renders args for display only.
func quote(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'$`\\") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}
