// Package release plans and applies version bumps across a workspace.
package release

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/git"
	"github.com/felixgeelhaar/rman/internal/log"
	"github.com/felixgeelhaar/rman/internal/semver"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

// Options controls package selection and the new versions.
type Options struct {
	// Bump is a release type or an explicit version.
	Bump  string
	Preid string

	// All bumps every package, changed or not.
	All bool

	// Unified gives every selected package the highest new version.
	Unified bool

	// IgnoreDirty skips packages with uncommitted changes instead of
	// failing.
	IgnoreDirty bool

	// NoTag skips the commit and tag, and with them the dirty check.
	NoTag bool
}

// Status is the outcome of planning for one package.
type Status string

const (
	StatusBump      Status = "bump"
	StatusDependent Status = "dependent"
	StatusNoChange  Status = "no-change"
	StatusSkip      Status = "skip"
	StatusDirty     Status = "error"
)

// Entry is the plan for one package.
type Entry struct {
	Package    *workspace.Package
	Version    string
	NewVersion string
	Status     Status
	Message    string
}

// Plan is the set of version changes for a workspace.
type Plan struct {
	Entries []Entry
	Unified bool
	NoTag   bool

	// MaxVersion is the highest new version.
	MaxVersion string

	versions map[string]string
	root     string
	all      []*workspace.Package

	mu      sync.Mutex
	updated []*workspace.Package
}

// NewPlan decides the new version of every package. Packages with
// committed changes are selected, or all of them with All or Unified, and
// so is every package depending on a selected one.
func NewPlan(root string, pkgs []*workspace.Package, changes map[string]git.Change, opts Options) (*Plan, error) {
	plan := &Plan{
		Unified:  opts.Unified,
		NoTag:    opts.NoTag,
		versions: make(map[string]string),
		root:     root,
		all:      pkgs,
	}

	var dirty []string
	selected := make(map[string]bool)
	excluded := make(map[string]bool)
	index := make(map[string]int)

	for _, p := range pkgs {
		e := Entry{Package: p, Version: p.Version}

		switch {
		case !opts.NoTag && changes[p.Name] == git.Dirty:
			excluded[p.Name] = true
			if opts.IgnoreDirty {
				e.Status, e.Message = StatusSkip, "uncommitted changes"
			} else {
				e.Status, e.Message = StatusDirty, "git directory is not clean"
				dirty = append(dirty, p.Name)
			}
		case changes[p.Name] != git.Unchanged || opts.All || opts.Unified:
			next, err := semver.Inc(p.Version, opts.Bump, opts.Preid)
			if err != nil {
				return nil, fmt.Errorf("failed to bump %s: %w", p.Name, err)
			}
			e.Status, e.NewVersion = StatusBump, next
			selected[p.Name] = true
		default:
			e.Status, e.Message = StatusNoChange, "no change detected"
		}

		index[p.Name] = len(plan.Entries)
		plan.Entries = append(plan.Entries, e)
	}

	if len(dirty) > 0 {
		return nil, errors.NewDirtyPackagesError(dirty)
	}

	for _, p := range pkgs {
		if selected[p.Name] || excluded[p.Name] {
			continue
		}
		for _, dep := range p.Dependencies {
			if !selected[dep] {
				continue
			}
			next, err := semver.Inc(p.Version, opts.Bump, opts.Preid)
			if err != nil {
				return nil, fmt.Errorf("failed to bump %s: %w", p.Name, err)
			}
			e := &plan.Entries[index[p.Name]]
			e.Status, e.NewVersion, e.Message = StatusDependent, next, "depends on "+dep
			break
		}
	}

	var news []string
	for _, e := range plan.Entries {
		if e.NewVersion != "" {
			news = append(news, e.NewVersion)
		}
	}
	maxVersion, err := semver.Max(news...)
	if err != nil {
		return nil, err
	}
	plan.MaxVersion = maxVersion

	for i := range plan.Entries {
		e := &plan.Entries[i]
		if e.NewVersion == "" {
			continue
		}
		if opts.Unified {
			e.NewVersion = maxVersion
		}
		plan.versions[e.Package.Name] = e.NewVersion
	}
	return plan, nil
}

// Selected returns the packages that get a new version, in plan order.
func (p *Plan) Selected() []*workspace.Package {
	var out []*workspace.Package
	for _, e := range p.Entries {
		if e.NewVersion != "" {
			out = append(out, e.Package)
		}
	}
	return out
}

// NewVersion returns the planned version of name.
func (p *Plan) NewVersion(name string) (string, bool) {
	v, ok := p.versions[name]
	return v, ok
}

// Empty reports whether nothing would change.
func (p *Plan) Empty() bool {
	return len(p.versions) == 0
}

// Apply writes the new version of pkg to its manifest and points the
// ranges of every selected dependent on pkg at ^version.
func (p *Plan) Apply(pkg *workspace.Package, logger *log.Logger) error {
	version, ok := p.versions[pkg.Name]
	if !ok {
		return nil
	}
	if logger == nil {
		logger = log.Discard()
	}

	if err := pkg.Reload(); err != nil {
		return fmt.Errorf("failed to reload %s: %w", pkg.Name, err)
	}
	old := pkg.Version
	if err := pkg.SetVersion(version); err != nil {
		return err
	}
	if err := pkg.Save(); err != nil {
		return err
	}
	p.touch(pkg)
	logger.Info("version changed", "package", pkg.Name, "from", old, "to", version)

	for _, dependent := range p.all {
		if dependent == pkg || !dependent.DependsOn(pkg.Name) {
			continue
		}
		if _, selected := p.versions[dependent.Name]; !selected {
			continue
		}
		if err := dependent.Reload(); err != nil {
			return fmt.Errorf("failed to reload %s: %w", dependent.Name, err)
		}
		changed, err := dependent.SetDependencyRange(pkg.Name, "^"+version)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		if err := dependent.Save(); err != nil {
			return err
		}
		p.touch(dependent)
		logger.Debug("dependency range updated", "package", dependent.Name, "dependency", pkg.Name, "range", "^"+version)
	}
	return nil
}

func (p *Plan) touch(pkg *workspace.Package) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.updated {
		if u == pkg {
			return
		}
	}
	p.updated = append(p.updated, pkg)
}

// Group is a set of manifests committed together.
type Group struct {
	Version string
	Files   []string
}

// Groups returns the rewritten manifests grouped by the version their
// package now has, in the order the first package of each group was
// written. Paths are relative to the workspace root.
func (p *Plan) Groups() []Group {
	p.mu.Lock()
	defer p.mu.Unlock()

	var groups []Group
	at := make(map[string]int)
	for _, pkg := range p.updated {
		rel, err := filepath.Rel(p.root, pkg.ManifestPath())
		if err != nil {
			rel = pkg.ManifestPath()
		}
		i, ok := at[pkg.Version]
		if !ok {
			i = len(groups)
			at[pkg.Version] = i
			groups = append(groups, Group{Version: pkg.Version})
		}
		groups[i].Files = append(groups[i].Files, filepath.ToSlash(rel))
	}
	return groups
}

// Commit commits each version group and, for unified plans, tags the
// release. A failing tag is logged, not returned.
func (p *Plan) Commit(ctx context.Context, client *git.Client, logger *log.Logger) error {
	if logger == nil {
		logger = log.Discard()
	}
	for _, g := range p.Groups() {
		if err := client.Commit(ctx, g.Version, g.Files); err != nil {
			return err
		}
		logger.Info("committed version", "version", g.Version, "files", len(g.Files))
	}
	if p.Unified && p.MaxVersion != "" {
		tag := "v" + p.MaxVersion
		if err := client.Tag(ctx, tag, tag); err != nil {
			logger.WithError(err).Warn("failed to create tag", "tag", tag)
		}
	}
	return nil
}

// Describe renders the plan for confirmation prompts.
func (p *Plan) Describe() string {
	width := 0
	for _, e := range p.Entries {
		width = max(width, len(e.Package.Name))
	}

	var b strings.Builder
	entries := append([]Entry(nil), p.Entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].NewVersion != "" && entries[j].NewVersion == ""
	})
	for _, e := range entries {
		switch {
		case e.NewVersion != "":
			fmt.Fprintf(&b, "%-*s  %s => %s", width, e.Package.Name, e.Version, e.NewVersion)
			if e.Status == StatusDependent {
				b.WriteString("  (" + e.Message + ")")
			}
		default:
			fmt.Fprintf(&b, "%-*s  %s  %s", width, e.Package.Name, e.Version, e.Message)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
