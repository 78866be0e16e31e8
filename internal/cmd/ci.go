package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rman/internal/multitask"
	"github.com/felixgeelhaar/rman/internal/task"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

// installArtifacts are removed from every package and the root before a
// clean install.
var installArtifacts = []string{"node_modules", "package-lock.json", "yarn.lock"}

func newCICmd(cc *CommandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ci",
		Short: "Delete installed modules and lock files, then reinstall",
		Long: `Remove node_modules, package-lock.json and yarn.lock from every
package and from the root, then run "<client> install" at the root.

The client is npm unless the "client" setting says yarn.`,
		Example: `  rman ci
  rman ci --client yarn`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCI(cmd.Context(), cc)
		},
	}
	cmd.Flags().String("client", "npm", "package manager used for the install: npm or yarn")
	addExecutionFlags(cmd)
	return cmd
}

func runCI(ctx context.Context, cc *CommandContext) error {
	ws, err := cc.Workspace()
	if err != nil {
		return err
	}

	engine := cc.Engine(cc.EngineOptions("ci", "ci"))
	scripts := &multitask.ScriptBuilder{
		Engine:   engine,
		Script:   "ci",
		Parallel: cc.Config.Parallel("ci"),
		Builtin: &multitask.Builtin{
			Label:   "clean",
			Command: "rm -rf " + strings.Join(installArtifacts, " "),
			Action: func(pkg *workspace.Package) task.Action {
				return multitask.RemoveAction(pkg.Dir, installArtifacts...)
			},
		},
	}

	builder := multitask.BuilderFunc(func(ctx context.Context, pkgs []*workspace.Package) ([]*task.Task, error) {
		tasks, err := scripts.PrepareTasks(ctx, pkgs)
		if err != nil {
			return nil, err
		}
		install := installTask(engine, ws, cc.Config.Client())
		for _, t := range tasks {
			install.Dependencies = append(install.Dependencies, t.Name)
		}
		return append(tasks, install), nil
	})

	_, err = engine.Run(ctx, builder, ws.Packages(workspace.ListOptions{Toposort: true}))
	return err
}

// installTask cleans the root and runs the client install, alone.
func installTask(engine *multitask.Engine, ws *workspace.Workspace, client string) *task.Task {
	prefix := "root"
	if ws.Root != nil && ws.Root.Name != "" {
		prefix = ws.Root.Name
	}

	clean := task.NewLeaf(prefix+":clean", multitask.RemoveAction(ws.Dir, installArtifacts...))
	clean.Meta = task.Meta{Package: prefix, Step: "clean", Command: "rm -rf " + strings.Join(installArtifacts, " "), Dir: ws.Dir}

	meta := task.Meta{Package: prefix, Step: "install", Command: client + " install", Dir: ws.Dir}
	install := task.NewLeaf(prefix+":install", engine.Command(prefix+":install", meta))
	install.Meta = meta

	g := task.NewGroup(prefix+":ci", clean, install)
	g.Serial = true
	g.Bail = true
	g.Exclusive = true
	return g
}
