package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rman/internal/git"
	"github.com/felixgeelhaar/rman/internal/multitask"
	"github.com/felixgeelhaar/rman/internal/release"
	"github.com/felixgeelhaar/rman/internal/task"
	"github.com/felixgeelhaar/rman/internal/tui"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

type versionFlags struct {
	unified     bool
	all         bool
	ignoreDirty bool
	noTag       bool
	yes         bool
	preid       string
}

func newVersionCmd(cc *CommandContext) *cobra.Command {
	flags := &versionFlags{}
	cmd := &cobra.Command{
		Use:   "version [bump]",
		Short: "Bump the versions of changed packages and their dependents",
		Long: `Bump the version of every package with committed changes, and of every
package depending on one, then commit the rewritten manifests.

<bump> is a release type (major, minor, patch, premajor, preminor,
prepatch, prerelease) or an explicit version. Dependents get their ranges
on a bumped package rewritten to ^<new version>.`,
		Example: `  rman version patch
  rman version minor --unified
  rman version prerelease --preid beta --no-tag
  rman version 2.0.0 --all --yes`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bump := ""
			if len(args) == 1 {
				bump = args[0]
			}
			return runVersion(cmd.Context(), cc, flags, bump)
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&flags.unified, "unified", "u", false, "give every package the highest new version and tag it")
	f.BoolVarP(&flags.all, "all", "a", false, "bump every package, changed or not")
	f.BoolVarP(&flags.ignoreDirty, "ignore-dirty", "i", false, "skip packages with uncommitted changes instead of failing")
	f.BoolVarP(&flags.noTag, "no-tag", "n", false, "do not commit or tag, and skip the clean working tree check")
	f.BoolVarP(&flags.yes, "yes", "y", false, "apply without asking for confirmation")
	f.StringVar(&flags.preid, "preid", "", "prerelease identifier, e.g. alpha or beta")
	addExecutionFlags(cmd)
	return cmd
}

func runVersion(ctx context.Context, cc *CommandContext, flags *versionFlags, bump string) error {
	ws, err := cc.Workspace()
	if err != nil {
		return err
	}

	if bump == "" {
		if !cc.CanPrompt() {
			return MissingBumpError()
		}
		bump, err = tui.PromptForSelect("Select a release type", bumpNames())
		if err != nil {
			return err
		}
	}

	pkgs := ws.Packages(workspace.ListOptions{Toposort: true})
	client := git.New(cc.Runner, ws.Dir, cc.Logger)

	// Changes drive selection and the dirty check; with --no-tag and every
	// package selected neither applies.
	var changes map[string]git.Change
	if !flags.noTag || !(flags.all || flags.unified) {
		changes, err = client.Changes(ctx, pkgs)
		if err != nil {
			return GitUnavailableError(err)
		}
	}

	plan, err := release.NewPlan(ws.Dir, pkgs, changes, release.Options{
		Bump:        bump,
		Preid:       flags.preid,
		All:         flags.all,
		Unified:     flags.unified,
		IgnoreDirty: flags.ignoreDirty,
		NoTag:       flags.noTag,
	})
	if err != nil {
		return err
	}
	if plan.Empty() {
		cc.Logger.Info("no packages to version")
		return nil
	}

	if !flags.yes && cc.CanPrompt() {
		ok, err := tui.PromptForConfirmation("Apply these versions?", plan.Describe(), true)
		if err != nil {
			return err
		}
		if !ok {
			cc.Logger.Info("version cancelled")
			return nil
		}
	} else if !cc.JSON {
		fmt.Fprintln(cc.Err, plan.Describe())
	}

	opts := cc.EngineOptions("version", "version")
	engine := cc.Engine(opts)
	logger := cc.Logger
	scripts := &multitask.ScriptBuilder{
		Engine:    engine,
		Script:    "version",
		Parallel:  cc.Config.Parallel("version"),
		Exclusive: true,
		Builtin: &multitask.Builtin{
			Label:   "version",
			Command: "set version",
			Action: func(pkg *workspace.Package) task.Action {
				if _, ok := plan.NewVersion(pkg.Name); !ok {
					return nil
				}
				return multitask.FuncAction(func(context.Context) error {
					return plan.Apply(pkg, logger)
				})
			},
		},
	}

	builder := multitask.BuilderFunc(func(ctx context.Context, pkgs []*workspace.Package) ([]*task.Task, error) {
		tasks, err := scripts.PrepareTasks(ctx, pkgs)
		if err != nil || flags.noTag {
			return tasks, err
		}
		commit := task.NewLeaf("git:commit", multitask.FuncAction(func(ctx context.Context) error {
			return plan.Commit(ctx, client, logger)
		}))
		commit.Meta = task.Meta{Package: "git", Step: "commit", Command: "git commit", Dir: ws.Dir}
		commit.Exclusive = true
		for _, t := range tasks {
			commit.Dependencies = append(commit.Dependencies, t.Name)
		}
		return append(tasks, commit), nil
	})

	_, err = engine.Run(ctx, builder, plan.Selected())
	return err
}
