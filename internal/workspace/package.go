package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/felixgeelhaar/rman/internal/errors"
)

// ManifestFile is the package manifest looked for in every directory.
const ManifestFile = "package.json"

// DependencyFields are the manifest fields whose keys count as declared
// dependencies, in the order they are read.
var DependencyFields = []string{
	"dependencies",
	"devDependencies",
	"peerDependencies",
	"optionalDependencies",
}

// Package is one workspace member backed by its package.json.
type Package struct {
	Name    string
	Version string
	Private bool
	Dir     string

	// Scripts maps script names to command lines.
	Scripts map[string]string

	// Declared lists every dependency name from DependencyFields,
	// in field order and document order, without duplicates.
	Declared []string

	// Dependencies is the transitive closure of Declared restricted to
	// workspace packages. It never contains the package itself.
	Dependencies []string

	manifest []byte
}

// LoadPackage reads and parses dir/package.json.
func LoadPackage(dir string) (*Package, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parsePackage(dir, data)
}

func parsePackage(dir string, data []byte) (*Package, error) {
	path := filepath.Join(dir, ManifestFile)
	if !gjson.ValidBytes(data) {
		return nil, errors.NewManifestError(path, fmt.Errorf("malformed JSON"))
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, errors.NewManifestError(path, fmt.Errorf("manifest is not an object"))
	}

	p := &Package{
		Name:     doc.Get("name").String(),
		Version:  doc.Get("version").String(),
		Private:  doc.Get("private").Bool(),
		Dir:      dir,
		Scripts:  make(map[string]string),
		manifest: data,
	}

	doc.Get("scripts").ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			p.Scripts[key.String()] = value.String()
		}
		return true
	})

	seen := make(map[string]bool)
	for _, field := range DependencyFields {
		doc.Get(field).ForEach(func(key, _ gjson.Result) bool {
			name := key.String()
			if !seen[name] {
				seen[name] = true
				p.Declared = append(p.Declared, name)
			}
			return true
		})
	}

	return p, nil
}

// ManifestPath returns the path of the package's package.json.
func (p *Package) ManifestPath() string {
	return filepath.Join(p.Dir, ManifestFile)
}

// Manifest returns a copy of the raw manifest bytes.
func (p *Package) Manifest() []byte {
	out := make([]byte, len(p.manifest))
	copy(out, p.manifest)
	return out
}

// Get reads a value from the manifest by gjson path.
func (p *Package) Get(path string) gjson.Result {
	return gjson.GetBytes(p.manifest, path)
}

// HasScript reports whether the package defines the named script.
func (p *Package) HasScript(name string) bool {
	_, ok := p.Scripts[name]
	return ok
}

// DependsOn reports whether name is in the package's dependency closure.
func (p *Package) DependsOn(name string) bool {
	for _, dep := range p.Dependencies {
		if dep == name {
			return true
		}
	}
	return false
}

// Reload re-reads the manifest from disk, keeping the computed
// dependency closure.
func (p *Package) Reload() error {
	fresh, err := LoadPackage(p.Dir)
	if err != nil {
		return err
	}
	deps := p.Dependencies
	*p = *fresh
	p.Dependencies = deps
	return nil
}

// SetVersion updates the version field in the in-memory manifest.
func (p *Package) SetVersion(version string) error {
	data, err := sjson.SetBytes(p.manifest, "version", version)
	if err != nil {
		return fmt.Errorf("failed to set version of %s: %w", p.Name, err)
	}
	p.manifest = data
	p.Version = version
	return nil
}

// SetDependencyRange rewrites the range of dep in every dependency field
// that already lists it. It reports whether anything changed.
func (p *Package) SetDependencyRange(dep, rng string) (bool, error) {
	changed := false
	for _, field := range DependencyFields {
		path := field + "." + escapePath(dep)
		current := gjson.GetBytes(p.manifest, path)
		if !current.Exists() || current.String() == rng {
			continue
		}
		data, err := sjson.SetBytes(p.manifest, path, rng)
		if err != nil {
			return changed, fmt.Errorf("failed to set %s range in %s: %w", dep, p.Name, err)
		}
		p.manifest = data
		changed = true
	}
	return changed, nil
}

// Save writes the in-memory manifest back to disk.
func (p *Package) Save() error {
	path := p.ManifestPath()
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, p.manifest, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// escapePath escapes characters gjson and sjson treat as path syntax,
// so scoped names like @scope/pkg.js address a single key.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '!', '=', '<', '>', '%', '"', '\\', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
