package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/log"
)

// MaxRootDepth is how many parent directories FindRoot climbs.
const MaxRootDepth = 10

// Workspace is the discovered package graph of a monorepo.
type Workspace struct {
	// Dir is the workspace root directory.
	Dir string

	// Root is the root manifest. It is not a member of Packages.
	Root *Package

	// Patterns are the package discovery globs from the root manifest.
	Patterns []string

	packages []*Package
	byName   map[string]*Package
	order    []string
}

// ListOptions controls the order Packages returns.
type ListOptions struct {
	// Toposort biases the order towards dependencies first.
	Toposort bool
}

// FindRoot walks upward from start, at most maxDepth parents, and returns
// the first directory whose package.json declares workspace patterns.
func FindRoot(start string, maxDepth int) (string, []string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve %s: %w", start, err)
	}

	for i := 0; i <= maxDepth; i++ {
		data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
		if err == nil {
			if patterns, ok := workspacePatterns(data); ok {
				return dir, patterns, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil, errors.NewNoWorkspaceError(start, maxDepth)
}

// workspacePatterns accepts both "workspaces": [...] and
// "workspaces": {"packages": [...]}.
func workspacePatterns(data []byte) ([]string, bool) {
	if !gjson.ValidBytes(data) {
		return nil, false
	}

	ws := gjson.GetBytes(data, "workspaces")
	if !ws.IsArray() {
		ws = ws.Get("packages")
	}
	if !ws.IsArray() {
		return nil, false
	}

	var patterns []string
	for _, p := range ws.Array() {
		if s := strings.TrimSpace(p.String()); s != "" {
			patterns = append(patterns, s)
		}
	}
	return patterns, true
}

// Discover globs every pattern relative to root and loads the immediate
// directories that hold a package.json with a name. Patterns starting with
// "!" exclude directories. Duplicate names keep the first match.
func Discover(root string, patterns []string, logger *log.Logger) ([]*Package, error) {
	if logger == nil {
		logger = log.Discard()
	}

	excluded := make(map[string]bool)
	var include []string
	for _, pattern := range patterns {
		if neg, ok := strings.CutPrefix(pattern, "!"); ok {
			matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(neg)))
			if err != nil {
				return nil, fmt.Errorf("invalid workspace pattern %q: %w", pattern, err)
			}
			for _, m := range matches {
				excluded[filepath.Clean(m)] = true
			}
			continue
		}
		include = append(include, pattern)
	}

	var packages []*Package
	seen := make(map[string]string)
	for _, pattern := range include {
		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, fmt.Errorf("invalid workspace pattern %q: %w", pattern, err)
		}

		for _, dir := range matches {
			dir = filepath.Clean(dir)
			if excluded[dir] {
				continue
			}
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				continue
			}

			pkg, err := LoadPackage(dir)
			if err != nil {
				if !os.IsNotExist(err) {
					logger.Warn("skipping package with unreadable manifest", "dir", dir, "error", err)
				}
				continue
			}
			if pkg.Name == "" {
				logger.Debug("skipping package without a name", "dir", dir)
				continue
			}
			if first, dup := seen[pkg.Name]; dup {
				logger.Debug("duplicate package name, keeping first", "name", pkg.Name, "kept", first, "ignored", dir)
				continue
			}

			seen[pkg.Name] = dir
			packages = append(packages, pkg)
		}
	}

	return packages, nil
}

// Load finds the workspace enclosing start and builds its package graph.
func Load(start string, logger *log.Logger) (*Workspace, error) {
	if logger == nil {
		logger = log.Discard()
	}

	dir, patterns, err := FindRoot(start, MaxRootDepth)
	if err != nil {
		return nil, err
	}

	root, err := LoadPackage(dir)
	if err != nil {
		return nil, err
	}

	packages, err := Discover(dir, patterns, logger)
	if err != nil {
		return nil, err
	}

	ws := New(dir, root, packages)
	ws.Patterns = patterns
	logger.Debug("workspace loaded", "root", dir, "packages", len(packages))
	return ws, nil
}

// New builds a workspace from already loaded packages and computes every
// package's dependency closure.
func New(dir string, root *Package, packages []*Package) *Workspace {
	ws := &Workspace{
		Dir:      dir,
		Root:     root,
		packages: packages,
		byName:   make(map[string]*Package, len(packages)),
	}
	for _, p := range packages {
		ws.byName[p.Name] = p
	}
	for _, p := range packages {
		p.Dependencies = ws.closeDependencies(p, map[string]bool{p.Name: true})
	}
	return ws
}

// closeDependencies returns every workspace package reachable from p's
// declared dependencies. visited guards against cycles, which are tolerated.
func (w *Workspace) closeDependencies(p *Package, visited map[string]bool) []string {
	var closure []string
	queue := w.direct(p)
	for i := 0; i < len(queue); i++ {
		name := queue[i]
		if visited[name] {
			continue
		}
		visited[name] = true
		closure = append(closure, name)
		queue = append(queue, w.direct(w.byName[name])...)
	}
	return closure
}

// direct returns p's declared dependencies that are workspace packages.
func (w *Workspace) direct(p *Package) []string {
	var names []string
	for _, name := range p.Declared {
		if _, ok := w.byName[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// SetPackageOrder pins the listed names to the front of every listing.
func (w *Workspace) SetPackageOrder(names []string) {
	w.order = names
}

// Package returns the package with the given name.
func (w *Workspace) Package(name string) (*Package, bool) {
	p, ok := w.byName[name]
	return p, ok
}

// Len returns the number of packages.
func (w *Workspace) Len() int {
	return len(w.packages)
}

// Packages returns the packages in discovery order or, with Toposort, in
// heuristic dependency order.
//
// Toposort is a stable sort with a pairwise comparator: a sorts before b
// when b depends on a. It is not a strict topological sort and complex
// graphs may still come out partially unordered.
func (w *Workspace) Packages(opts ListOptions) []*Package {
	list := make([]*Package, len(w.packages))
	copy(list, w.packages)

	if opts.Toposort {
		sort.SliceStable(list, func(i, j int) bool {
			return list[j].DependsOn(list[i].Name)
		})
	}

	if len(w.order) > 0 {
		rank := make(map[string]int, len(w.order))
		for i, name := range w.order {
			if _, ok := rank[name]; !ok {
				rank[name] = i
			}
		}
		sort.SliceStable(list, func(i, j int) bool {
			ri, iok := rank[list[i].Name]
			rj, jok := rank[list[j].Name]
			switch {
			case iok && jok:
				return ri < rj
			default:
				return iok && !jok
			}
		})
	}

	return list
}

// Dependents returns the packages whose closure contains name, in
// discovery order.
func (w *Workspace) Dependents(name string) []*Package {
	var out []*Package
	for _, p := range w.packages {
		if p.DependsOn(name) {
			out = append(out, p)
		}
	}
	return out
}
