package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rman/internal/detect"
	"github.com/felixgeelhaar/rman/internal/ux"
	"github.com/felixgeelhaar/rman/internal/version"
)

// InfoReport is the output of `rman info`.
type InfoReport struct {
	Rman      version.Info        `json:"rman" yaml:"rman"`
	System    *detect.Environment `json:"system" yaml:"system"`
	Workspace *WorkspaceInfo      `json:"workspace,omitempty" yaml:"workspace,omitempty"`
}

// WorkspaceInfo summarizes the enclosing workspace.
type WorkspaceInfo struct {
	Root     string   `json:"root" yaml:"root"`
	Packages int      `json:"packages" yaml:"packages"`
	Config   []string `json:"config,omitempty" yaml:"config,omitempty"`
}

func newInfoCmd(cc *CommandContext) *cobra.Command {
	var yamlOut bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print environment information for bug reports",
		Example: `  rman info
  rman info --json
  rman info --yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInfo(cmd.Context(), cc, ux.SelectFormat(cc.JSON, yamlOut), detect.Detector{})
		},
	}
	cmd.Flags().BoolVar(&yamlOut, "yaml", false, "write the report as YAML")
	return cmd
}

func runInfo(ctx context.Context, cc *CommandContext, format string, d detect.Detector) error {
	env, err := d.Detect(ctx)
	if err != nil {
		return fmt.Errorf("failed to detect environment: %w", err)
	}

	report := InfoReport{Rman: version.GetInfo(), System: env}
	if ws, err := cc.Workspace(); err == nil {
		report.Workspace = &WorkspaceInfo{Root: ws.Dir, Packages: ws.Len(), Config: cc.Config.Sources()}
	} else {
		cc.Logger.Debug("no workspace", "error", err)
	}

	f, err := ux.NewFormatter(format, &ux.FormatterOptions{Writer: cc.Out})
	if err != nil {
		return err
	}
	return f.Format(report)
}

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	labelStyle   = lipgloss.NewStyle().PaddingLeft(4)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("228"))
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type infoRow struct {
	label string
	value string
	path  string
}

// RenderText writes the report as labelled sections.
func (r InfoReport) RenderText(w io.Writer) error {
	sections := []struct {
		title string
		rows  []infoRow
	}{
		{"rman", []infoRow{
			{label: "Version", value: r.Rman.Version},
			{label: "Commit", value: r.Rman.ShortCommit()},
			{label: "Go", value: r.Rman.GoVersion},
		}},
		{"System", []infoRow{
			{label: "OS", value: r.System.OS + "/" + r.System.Arch},
			{label: "CPUs", value: strconv.Itoa(r.System.CPUs)},
			{label: "Shell", value: r.System.Shell},
			{label: "CI", value: ciName(r.System.CI)},
		}},
		{"Binaries", toolRows(r.System.Tools)},
	}
	if r.Workspace != nil {
		rows := []infoRow{
			{label: "Root", path: r.Workspace.Root},
			{label: "Packages", value: strconv.Itoa(r.Workspace.Packages)},
		}
		for _, src := range r.Workspace.Config {
			rows = append(rows, infoRow{label: "Config", path: src})
		}
		sections = append(sections, struct {
			title string
			rows  []infoRow
		}{"Workspace", rows})
	}

	width := 0
	for _, s := range sections {
		for _, row := range s.rows {
			width = max(width, len(row.label))
		}
	}

	for _, s := range sections {
		if _, err := fmt.Fprintln(w, sectionStyle.Render(s.title+":")); err != nil {
			return err
		}
		for _, row := range s.rows {
			line := labelStyle.Render(fmt.Sprintf("%-*s :", width, row.label))
			if row.value != "" {
				line += " " + valueStyle.Render(row.value)
			}
			if row.path != "" {
				line += " " + pathStyle.Render(row.path)
			}
			if row.value == "" && row.path == "" {
				line += " " + mutedStyle.Render("Not Found")
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func toolRows(tools []detect.Tool) []infoRow {
	rows := make([]infoRow, len(tools))
	for i, t := range tools {
		rows[i] = infoRow{label: t.Name, value: t.Version, path: t.Path}
	}
	return rows
}

func ciName(ci detect.CIInfo) string {
	if !ci.Detected {
		return "no"
	}
	return ci.Name
}
