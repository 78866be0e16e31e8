package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rman/internal/git"
	"github.com/felixgeelhaar/rman/internal/ux"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

type listFlags struct {
	short     bool
	parseable bool
	toposort  bool
	graph     bool
}

// PackageEntry is one row of list output.
type PackageEntry struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Private      bool     `json:"private"`
	Changed      string   `json:"changed,omitempty"`
	Path         string   `json:"path"`
	Dependencies []string `json:"dependencies"`
}

func newListCmd(cc *CommandContext) *cobra.Command {
	flags := &listFlags{}
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the packages of the workspace",
		Example: `  rman list
  rman ls --toposort --short
  rman list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cc, flags, false)
		},
	}
	addListFlags(cmd, flags)
	return cmd
}

func newChangedCmd(cc *CommandContext) *cobra.Command {
	flags := &listFlags{}
	cmd := &cobra.Command{
		Use:   "changed",
		Short: "List packages with uncommitted or unpushed changes",
		Example: `  rman changed
  rman changed --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cc, flags, true)
		},
	}
	addListFlags(cmd, flags)
	return cmd
}

func addListFlags(cmd *cobra.Command, flags *listFlags) {
	f := cmd.Flags()
	f.BoolVarP(&flags.short, "short", "s", false, "print package names only")
	f.BoolVarP(&flags.parseable, "parseable", "p", false, "print name::version::private::changed::path lines")
	f.BoolVarP(&flags.toposort, "toposort", "t", false, "sort dependencies before their dependents")
	f.BoolVarP(&flags.graph, "graph", "g", false, "print every package with its dependencies")
	cmd.MarkFlagsMutuallyExclusive("short", "parseable", "graph")
}

func runList(ctx context.Context, cc *CommandContext, flags *listFlags, changedOnly bool) error {
	ws, err := cc.Workspace()
	if err != nil {
		return err
	}
	pkgs := ws.Packages(workspace.ListOptions{Toposort: flags.toposort})

	changes, err := git.New(cc.Runner, ws.Dir, cc.Logger).Changes(ctx, pkgs)
	if err != nil {
		if changedOnly {
			return GitUnavailableError(err)
		}
		cc.Logger.Warn("change detection unavailable", "error", err)
		changes = nil
	}

	entries := make([]PackageEntry, 0, len(pkgs))
	for _, p := range pkgs {
		change := changes[p.Name]
		if changedOnly && change == git.Unchanged {
			continue
		}
		entries = append(entries, newPackageEntry(ws.Dir, p, change))
	}

	switch {
	case cc.JSON && flags.graph:
		return writeJSON(cc.Out, graph(entries))
	case cc.JSON:
		return writeJSON(cc.Out, entries)
	case flags.graph:
		return writeGraph(cc.Out, entries)
	case flags.short:
		for _, e := range entries {
			fmt.Fprintln(cc.Out, e.Name)
		}
		return nil
	case flags.parseable:
		for _, e := range entries {
			fmt.Fprintln(cc.Out, e.Parseable())
		}
		return nil
	}

	if len(entries) == 0 {
		cc.Logger.Info("no packages found", "changed_only", changedOnly)
		return nil
	}
	fmt.Fprintln(cc.Out, packageTable(entries))
	cc.Logger.Info(fmt.Sprintf("%d package(s) found", len(entries)))
	return nil
}

func newPackageEntry(root string, p *workspace.Package, change git.Change) PackageEntry {
	path, err := filepath.Rel(root, p.Dir)
	if err != nil {
		path = p.Dir
	}
	deps := p.Dependencies
	if deps == nil {
		deps = []string{}
	}
	return PackageEntry{
		Name:         p.Name,
		Version:      p.Version,
		Private:      p.Private,
		Changed:      string(change),
		Path:         filepath.ToSlash(path),
		Dependencies: deps,
	}
}

// Parseable joins the entry's fields with "::".
func (e PackageEntry) Parseable() string {
	return strings.Join([]string{e.Name, e.Version, strconv.FormatBool(e.Private), e.Changed, e.Path}, "::")
}

func graph(entries []PackageEntry) map[string][]string {
	out := make(map[string][]string, len(entries))
	for _, e := range entries {
		out[e.Name] = e.Dependencies
	}
	return out
}

func writeGraph(w io.Writer, entries []PackageEntry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.Name); err != nil {
			return err
		}
		for _, dep := range e.Dependencies {
			if _, err := fmt.Fprintln(w, "  └─ "+dep); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeJSON(w io.Writer, data any) error {
	f, err := ux.NewFormatter(ux.FormatJSON, &ux.FormatterOptions{Writer: w})
	if err != nil {
		return err
	}
	return f.Format(data)
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	nameStyle      = cellStyle.Foreground(lipgloss.Color("226"))
	versionStyle   = cellStyle.Foreground(lipgloss.Color("178"))
	privateStyle   = cellStyle.Foreground(lipgloss.Color("213"))
	dirtyStyle     = cellStyle.Foreground(lipgloss.Color("164"))
	committedStyle = cellStyle.Foreground(lipgloss.Color("178"))
)

func packageTable(entries []PackageEntry) string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		private := ""
		if e.Private {
			private = "yes"
		}
		rows[i] = []string{e.Name, e.Version, private, e.Changed, e.Path}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))).
		Headers("Package", "Version", "Private", "Changed", "Path").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow || row < 0 || row >= len(rows) {
				return headerStyle
			}
			switch col {
			case 0:
				return nameStyle
			case 1:
				return versionStyle
			case 2:
				return privateStyle
			case 3:
				if rows[row][3] == string(git.Dirty) {
					return dirtyStyle
				}
				return committedStyle
			}
			return cellStyle
		})
	return t.String()
}
