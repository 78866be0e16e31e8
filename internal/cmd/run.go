package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rman/internal/multitask"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

func newRunCmd(cc *CommandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a package script in every package that defines it",
		Long: `Run a script in every package that defines it, dependencies first.

The pre<script> and post<script> entries of each package run around it,
and those of the root manifest run once before and after all packages.`,
		Example: `  rman run test
  rman run lint --parallel --concurrency 4
  rman run build --no-bail --no-progress`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd.Context(), cc, args[0])
		},
	}
	addExecutionFlags(cmd)
	return cmd
}

func newBuildCmd(cc *CommandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the build script in every package",
		Long:  `Alias for "rman run build".`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScript(cmd.Context(), cc, "build")
		},
	}
	addExecutionFlags(cmd)
	return cmd
}

func runScript(ctx context.Context, cc *CommandContext, script string) error {
	ws, err := cc.Workspace()
	if err != nil {
		return err
	}

	engine := cc.Engine(cc.EngineOptions("run "+script, script))
	builder := &multitask.ScriptBuilder{
		Engine:   engine,
		Script:   script,
		Parallel: cc.Config.Parallel(script),
		Root:     ws.Root,
	}
	_, err = engine.Run(ctx, builder, ws.Packages(workspace.ListOptions{Toposort: true}))
	return err
}

func newExecCmd(cc *CommandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <cmd> [args...]",
		Short: "Run an arbitrary command in every package",
		Long: `Run a command in the directory of every package, dependencies first.

Arguments are passed to the command as-is. Flags for rman must come
before the command name.`,
		Example: `  rman exec -- rm -rf dist
  rman exec --parallel ls -la`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd.Context(), cc, args[0], args[1:])
		},
	}
	cmd.Flags().SetInterspersed(false)
	addExecutionFlags(cmd)
	return cmd
}

func runExec(ctx context.Context, cc *CommandContext, command string, args []string) error {
	ws, err := cc.Workspace()
	if err != nil {
		return err
	}

	engine := cc.Engine(cc.EngineOptions("exec "+command, command))
	builder := &multitask.ExecBuilder{
		Engine:   engine,
		Command:  command,
		Args:     args,
		Parallel: cc.Config.Parallel(command),
	}
	_, err = engine.Run(ctx, builder, ws.Packages(workspace.ListOptions{Toposort: true}))
	return err
}
