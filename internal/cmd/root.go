package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/tui"
	"github.com/felixgeelhaar/rman/internal/version"
)

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	logLevel string
	json     bool
	ci       bool
	cwd      string
}

// NewRootCommand builds the rman command tree. Processes started by any
// command are tracked in registry.
func NewRootCommand(registry *exec.Registry) *cobra.Command {
	flags := &globalFlags{}
	cc := &CommandContext{Registry: registry}

	info := version.GetInfo()
	rootCmd := &cobra.Command{
		Use:   "rman",
		Short: "Monorepo manager for npm and yarn workspaces",
		Long: `rman discovers the packages of a workspace, orders them by their
dependencies and runs scripts across them concurrently.

Packages are found through the "workspaces" globs of the root package.json.
Settings are read from the "rman" section of that manifest and from
.rman.yml, .rman.toml or .rmanrc next to it.`,
		Version:       info.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return cc.init(cmd, flags)
		},
	}
	rootCmd.SetVersionTemplate(info.Template())

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level: silly, verbose, info, output, notice, success, warn, error or silent")
	pf.BoolVarP(&flags.json, "json", "j", false, "write machine-readable JSON output")
	pf.BoolVar(&flags.ci, "ci", tui.IsCI(nil), "run in CI mode: error-level logging and no interactive output")
	pf.StringVar(&flags.cwd, "cwd", "", "directory to start the workspace lookup from")

	rootCmd.AddCommand(
		newListCmd(cc),
		newChangedCmd(cc),
		newRunCmd(cc),
		newBuildCmd(cc),
		newExecCmd(cc),
		newCICmd(cc),
		newPublishCmd(cc),
		newVersionCmd(cc),
		newInfoCmd(cc),
		newConfigCmd(cc),
		newCompletionCmd(),
	)
	return rootCmd
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context, registry *exec.Registry) error {
	return NewRootCommand(registry).ExecuteContext(ctx)
}
