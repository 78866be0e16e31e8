package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/multitask"
	"github.com/felixgeelhaar/rman/internal/npm"
	"github.com/felixgeelhaar/rman/internal/task"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

type publishFlags struct {
	contents  string
	access    string
	checkOnly bool
}

// PublishCheck is the registry comparison for one package.
type PublishCheck struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Registry string `json:"registry,omitempty"`
	Publish  bool   `json:"publish"`
}

func newPublishCmd(cc *CommandContext) *cobra.Command {
	flags := &publishFlags{}
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish packages whose version is not in the registry",
		Long: `Compare every public package with the registry and publish those whose
local version differs from the published one.

Publishing never stops at the first failure and ignores dependency order.
A version the registry already has is reported as a warning.`,
		Example: `  rman publish
  rman publish --contents dist --access public
  rman publish --check-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublish(cmd.Context(), cc, flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.contents, "contents", "", "publish from <contents>/<package dir name> under the workspace root")
	f.StringVar(&flags.access, "access", "", "registry access for scoped packages: public or restricted")
	f.BoolVar(&flags.checkOnly, "check-only", false, "only compare versions with the registry")
	addExecutionFlags(cmd)
	return cmd
}

func runPublish(ctx context.Context, cc *CommandContext, flags *publishFlags) error {
	switch flags.access {
	case "", "public", "restricted":
	default:
		return errors.New(errors.ErrCodeUsage, fmt.Sprintf("invalid --access %q", flags.access)).
			WithSuggestion("Use --access public or --access restricted")
	}

	ws, err := cc.Workspace()
	if err != nil {
		return err
	}

	var candidates []*workspace.Package
	for _, p := range ws.Packages(workspace.ListOptions{Toposort: true}) {
		if p.Private {
			cc.Logger.Info("ignored, package is private", "package", p.Name)
			continue
		}
		candidates = append(candidates, p)
	}

	checks, err := checkRegistry(ctx, cc, ws.Dir, candidates)
	if err != nil {
		return err
	}

	var selected []*workspace.Package
	for i, c := range checks {
		if c.Publish {
			selected = append(selected, candidates[i])
		}
	}

	if flags.checkOnly {
		if cc.JSON {
			return writeJSON(cc.Out, checks)
		}
		for _, c := range checks {
			fmt.Fprintln(cc.Out, c.String())
		}
		return nil
	}

	opts := cc.EngineOptions("publish", "publish")
	opts.Bail = false
	engine := cc.Engine(opts)

	command := "npm publish"
	if flags.access != "" {
		command += " --access=" + flags.access
	}
	builder := &multitask.ScriptBuilder{
		Engine:   engine,
		Script:   "publish",
		Parallel: true,
		Builtin: &multitask.Builtin{
			Label:   "publish",
			Command: command,
			Action: func(pkg *workspace.Package) task.Action {
				dir := pkg.Dir
				if flags.contents != "" {
					dir = filepath.Join(ws.Dir, flags.contents, filepath.Base(pkg.Dir))
				}
				return publishAction(engine, pkg, dir, command)
			},
		},
	}
	_, err = engine.Run(ctx, builder, selected)
	return err
}

// checkRegistry looks every package up concurrently. A package the
// registry has never seen needs publishing.
func checkRegistry(ctx context.Context, cc *CommandContext, dir string, pkgs []*workspace.Package) ([]PublishCheck, error) {
	names := make([]string, len(pkgs))
	for i, p := range pkgs {
		names[i] = p.Name
	}
	cc.Logger.Info("fetching package information from the registry", "packages", len(names))

	lookups, err := npm.New(cc.Runner, dir).ViewAll(ctx, names, cc.Concurrency())
	if err != nil {
		return nil, err
	}

	checks := make([]PublishCheck, len(pkgs))
	for i, l := range lookups {
		p := pkgs[i]
		check := PublishCheck{Name: p.Name, Version: p.Version}
		switch {
		case l.Err == nil:
			check.Registry = l.Info.Version
			check.Publish = l.Info.Version != p.Version
		case errors.HasCode(l.Err, errors.ErrCodePackageNotFound):
			check.Publish = true
		default:
			return nil, RegistryError(p.Name, l.Err)
		}
		cc.Logger.Debug("registry check", "package", p.Name, "local", check.Version, "registry", check.Registry, "publish", check.Publish)
		checks[i] = check
	}
	return checks, nil
}

// publishAction runs npm publish in dir. The registry refusing a version
// it already has is logged and treated as success.
func publishAction(engine *multitask.Engine, pkg *workspace.Package, dir, command string) task.Action {
	name := pkg.Name + ":publish"
	run := engine.Command(name, task.Meta{Package: pkg.Name, Step: "publish", Command: command, Dir: dir})
	return func(ctx context.Context) (*exec.Result, error) {
		res, err := run(ctx)
		if err != nil || !res.Failed() || ctx.Err() != nil {
			return res, err
		}
		if npm.AlreadyPublished(res.Stdout + "\n" + res.Stderr) {
			engine.Logger().Warn("version already published", "package", pkg.Name, "version", pkg.Version)
			res.ExitCode = 0
			res.Error = nil
		}
		return res, nil
	}
}

func (c PublishCheck) String() string {
	switch {
	case c.Registry == "":
		return fmt.Sprintf("%s  %s  not in registry, publish", c.Name, c.Version)
	case c.Publish:
		return fmt.Sprintf("%s  %s  differs from registry %s, publish", c.Name, c.Version, c.Registry)
	default:
		return fmt.Sprintf("%s  %s  same as registry, skip", c.Name, c.Version)
	}
}
