package exec

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	rerrors "github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/log"
)

// Runner executes shell commands with an augmented PATH and tracks the
// children it starts in a Registry.
type Runner struct {
	registry *Registry
	logger   *log.Logger
	environ  []string
}

// RunnerOption configures a Runner instance.
type RunnerOption func(*Runner)

// WithRegistry sets the registry that started processes are tracked in.
func WithRegistry(reg *Registry) RunnerOption {
	return func(r *Runner) {
		r.registry = reg
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *log.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithEnviron replaces the base environment (os.Environ by default).
func WithEnviron(env []string) RunnerOption {
	return func(r *Runner) {
		r.environ = env
	}
}

// NewRunner creates a command runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = NewRegistry()
	}
	if r.logger == nil {
		r.logger = log.Discard()
	}
	return r
}

// Registry returns the registry tracking this runner's children.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Run executes command through the shell and waits for it.
//
// A non-zero exit or a spawn failure sets Result.Error to a
// CommandExecutionError. That error is also returned unless
// opts.AllowFailure is set. The Result is never nil.
func (r *Runner) Run(ctx context.Context, command string, opts Options) (*Result, error) {
	start := time.Now()

	dir := opts.Dir
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}

	cmd := r.command(ctx, command, opts.Args)
	cmd.Dir = dir
	env := r.environ
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = BuildEnv(env, dir, opts.Env)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcess(cmd) }
	cmd.WaitDelay = 5 * time.Second

	var mu sync.Mutex
	stdout := newLineWriter(StreamStdout, &mu, opts.OnLine)
	stderr := newLineWriter(StreamStderr, &mu, opts.OnLine)

	if opts.Stdio == StdioInherit {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}

	r.logger.Debug("executing command", "cmd", command, "args", opts.Args, "cwd", dir)

	err := cmd.Start()
	if err == nil {
		id := r.registry.Add(cmd)
		err = cmd.Wait()
		r.registry.Remove(id)
	}

	stdout.Flush()
	stderr.Flush()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			result.ExitCode = 1
			result.Error = rerrors.Wrap(rerrors.ErrCodeCommandExecution, "command cancelled", ctx.Err())
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
			if result.ExitCode < 0 {
				result.ExitCode = 1
			}
			result.Error = rerrors.NewCommandExecutionError(command, result.ExitCode, nil)
		default:
			result.ExitCode = 1
			result.Error = rerrors.NewCommandExecutionError(command, result.ExitCode, err)
		}
	}

	r.logger.Debug("command finished", "cmd", command, "exit_code", result.ExitCode, "duration", result.Duration)

	if result.Error != nil && !opts.AllowFailure {
		return result, result.Error
	}
	return result, nil
}

// command builds the shell invocation. The command itself is parsed by the
// shell, so it may carry its own arguments; args are appended as
// positional parameters and never re-parsed.
func (r *Runner) command(ctx context.Context, command string, args []string) *exec.Cmd {
	shell, shellArgs := shellCommand()

	if len(args) == 0 {
		return exec.CommandContext(ctx, shell, append(shellArgs, command)...)
	}

	if shell == "cmd" {
		line := command + " " + strings.Join(args, " ")
		return exec.CommandContext(ctx, shell, append(shellArgs, line)...)
	}

	argv := append(shellArgs, command+` "$@"`, shell)
	argv = append(argv, args...)
	return exec.CommandContext(ctx, shell, argv...)
}
