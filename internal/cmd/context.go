package cmd

import (
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rman/internal/config"
	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/log"
	"github.com/felixgeelhaar/rman/internal/multitask"
	"github.com/felixgeelhaar/rman/internal/tui"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

// flagBindings maps config keys to the flags that override them.
var flagBindings = map[string]string{
	config.KeyLogLevel:    "log-level",
	config.KeyConcurrency: "concurrency",
	config.KeyParallel:    "parallel",
	config.KeyBail:        "bail",
	config.KeyProgress:    "progress",
	config.KeyClient:      "client",
}

// CommandContext holds everything a command needs, built once per
// invocation by the root command's PersistentPreRunE:
//   - the merged configuration for the running command
//   - the logger, the command runner and the workspace
//   - the global output switches
type CommandContext struct {
	Cwd  string
	JSON bool
	CI   bool

	Config   *config.Config
	Logger   *log.Logger
	Runner   *exec.Runner
	Registry *exec.Registry

	Out io.Writer
	Err io.Writer

	base      *config.Config
	workspace *workspace.Workspace
}

func (c *CommandContext) init(cmd *cobra.Command, flags *globalFlags) error {
	cwd := flags.cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		cwd = wd
	}
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return err
	}

	c.Cwd = abs
	c.JSON = flags.json
	c.CI = flags.ci
	c.Out = cmd.OutOrStdout()
	c.Err = cmd.ErrOrStderr()
	c.workspace = nil
	if c.Registry == nil {
		c.Registry = exec.NewRegistry()
	}

	// Settings live next to the root manifest; outside a workspace only
	// the defaults apply.
	dir := ""
	if root, _, err := workspace.FindRoot(abs, workspace.MaxRootDepth); err == nil {
		dir = root
	}
	base, err := config.Load(dir)
	if err != nil {
		return err
	}
	c.base = base
	cfg, err := base.ForCommand(cmd.Name())
	if err != nil {
		return err
	}
	if err := cfg.BindFlags(cmd.Flags(), flagBindings); err != nil {
		return err
	}
	if negated(cmd, "no-bail") {
		cfg.Set(config.KeyBail, false)
	}
	if negated(cmd, "no-progress") {
		cfg.Set(config.KeyProgress, false)
	}
	c.Config = cfg

	c.Logger = c.newLogger(cmd)
	c.Runner = exec.NewRunner(exec.WithRegistry(c.Registry), exec.WithLogger(c.Logger))

	c.Logger.Debug("configuration loaded", "command", cmd.Name(), "sources", cfg.Sources(), "cwd", abs)
	return nil
}

func (c *CommandContext) newLogger(cmd *cobra.Command) *log.Logger {
	lc := log.DefaultConfig()
	lc.Output = log.NewOutput(c.Err)
	lc.Level = log.ParseLevel(c.Config.LogLevel())

	if c.CI {
		if f := cmd.Flags().Lookup("log-level"); f == nil || !f.Changed {
			lc.Level = log.CIConfig().Level
		}
	}
	if c.JSON {
		lc.Format = log.FormatJSON
		return log.New(lc).With("run_id", uuid.NewString())
	}
	return log.New(lc)
}

func negated(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed && f.Value.String() == "true"
}

// Workspace loads the workspace enclosing Cwd on first use.
func (c *CommandContext) Workspace() (*workspace.Workspace, error) {
	if c.workspace != nil {
		return c.workspace, nil
	}
	ws, err := workspace.Load(c.Cwd, c.Logger)
	if err != nil {
		return nil, err
	}
	if order := c.Config.PackageOrder(); len(order) > 0 {
		ws.SetPackageOrder(order)
	}
	c.workspace = ws
	return ws, nil
}

// Concurrency returns the configured limit, or the CPU count.
func (c *CommandContext) Concurrency() int {
	if n := c.Config.Concurrency(); n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// EngineOptions derives run options for script from the config and the
// output switches. The live view needs progress enabled, a terminal on
// stdout, and neither CI nor JSON mode.
func (c *CommandContext) EngineOptions(name, script string) multitask.Options {
	tty := isTerminal(c.Out)
	return multitask.Options{
		Name:        name,
		Concurrency: c.Config.Concurrency(),
		Bail:        c.Config.Bail(script),
		JSON:        c.JSON,
		Interactive: c.Config.Progress(script) && tty && !c.CI && !c.JSON,
		Color:       tty,
	}
}

// Engine creates a multitask engine writing to Out.
func (c *CommandContext) Engine(opts multitask.Options) *multitask.Engine {
	return multitask.New(c.Runner, c.Logger, c.Out, opts)
}

// CanPrompt reports whether interactive prompts may be shown.
func (c *CommandContext) CanPrompt() bool {
	return !c.JSON && tui.ShouldPrompt(c.CI) && isTerminal(c.Out)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && tui.IsTerminal(f)
}

// addExecutionFlags registers the flags shared by the execution commands.
func addExecutionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntP("concurrency", "c", 0, "maximum number of concurrent tasks (default: number of CPUs)")
	f.BoolP("parallel", "p", false, "ignore dependency order between packages")
	f.Bool("bail", true, "stop dependent tasks when a task fails")
	f.Bool("no-bail", false, "keep running dependent tasks after a failure")
	f.Bool("progress", true, "show the interactive progress view on a terminal")
	f.Bool("no-progress", false, "print plain log lines instead of the progress view")
	cmd.MarkFlagsMutuallyExclusive("bail", "no-bail")
	cmd.MarkFlagsMutuallyExclusive("progress", "no-progress")
}
