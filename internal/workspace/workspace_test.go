package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/felixgeelhaar/rman/internal/errors"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(content), 0o644))
}

func names(pkgs []*Package) []string {
	out := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, p.Name)
	}
	return out
}

func TestFindRoot(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     []string
	}{
		{
			name:     "array form",
			manifest: `{"name":"root","workspaces":["packages/*"]}`,
			want:     []string{"packages/*"},
		},
		{
			name:     "object form",
			manifest: `{"name":"root","workspaces":{"packages":["libs/*","apps/*"]}}`,
			want:     []string{"libs/*", "apps/*"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeManifest(t, root, tt.manifest)
			nested := filepath.Join(root, "packages", "a", "src")
			writeManifest(t, filepath.Join(root, "packages", "a"), `{"name":"a"}`)
			require.NoError(t, os.MkdirAll(nested, 0o755))

			dir, patterns, err := FindRoot(nested, MaxRootDepth)

			require.NoError(t, err)
			assert.Equal(t, root, dir)
			assert.Equal(t, tt.want, patterns)
		})
	}
}

func TestFindRootNoWorkspace(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"name":"plain"}`)

	_, _, err := FindRoot(root, 0)

	require.Error(t, err)
	assert.True(t, errors.Is(err, rerrors.ErrNoWorkspace))
}

func TestFindRootDepthLimit(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"workspaces":["*"]}`)
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	_, _, err := FindRoot(deep, 2)
	assert.True(t, errors.Is(err, rerrors.ErrNoWorkspace))

	dir, _, err := FindRoot(deep, 3)
	require.NoError(t, err)
	assert.Equal(t, root, dir)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "packages", "b"), `{"name":"b"}`)
	writeManifest(t, filepath.Join(root, "packages", "a"), `{"name":"a"}`)
	writeManifest(t, filepath.Join(root, "packages", "dup"), `{"name":"a"}`)
	writeManifest(t, filepath.Join(root, "packages", "noname"), `{"version":"1.0.0"}`)
	writeManifest(t, filepath.Join(root, "packages", "broken"), `{"name":`)
	writeManifest(t, filepath.Join(root, "packages", "ignored"), `{"name":"ignored"}`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "packages", "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "packages", "README.md"), []byte("x"), 0o644))
	writeManifest(t, filepath.Join(root, "tools", "cli"), `{"name":"cli"}`)

	pkgs, err := Discover(root, []string{"packages/*", "tools/*", "!packages/ignored"}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "cli"}, names(pkgs))
	assert.Equal(t, filepath.Join(root, "packages", "a"), pkgs[0].Dir)
}

func TestDependencyClosure(t *testing.T) {
	tests := []struct {
		name      string
		manifests map[string]string
		want      map[string][]string
	}{
		{
			name: "transitive chain",
			manifests: map[string]string{
				"a": `{"name":"a"}`,
				"b": `{"name":"b","dependencies":{"a":"^1.0.0","lodash":"^4"}}`,
				"c": `{"name":"c","devDependencies":{"b":"*"}}`,
			},
			want: map[string][]string{"a": nil, "b": {"a"}, "c": {"b", "a"}},
		},
		{
			name: "cycle is tolerated",
			manifests: map[string]string{
				"a": `{"name":"a","dependencies":{"b":"*"}}`,
				"b": `{"name":"b","peerDependencies":{"a":"*"}}`,
			},
			want: map[string][]string{"a": {"b"}, "b": {"a"}},
		},
		{
			name: "all dependency fields are read in order",
			manifests: map[string]string{
				"a": `{"name":"a"}`,
				"b": `{"name":"b"}`,
				"c": `{"name":"c"}`,
				"d": `{"name":"d","optionalDependencies":{"c":"*"},"peerDependencies":{"b":"*"},"dependencies":{"a":"*"}}`,
			},
			want: map[string][]string{"d": {"a", "b", "c"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			var pkgs []*Package
			for _, name := range []string{"a", "b", "c", "d"} {
				content, ok := tt.manifests[name]
				if !ok {
					continue
				}
				dir := filepath.Join(root, name)
				writeManifest(t, dir, content)
				p, err := LoadPackage(dir)
				require.NoError(t, err)
				pkgs = append(pkgs, p)
			}

			ws := New(root, nil, pkgs)

			for name, want := range tt.want {
				p, ok := ws.Package(name)
				require.True(t, ok)
				assert.Equal(t, want, p.Dependencies, "dependencies of %s", name)
			}
		})
	}
}

func TestPackagesToposort(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"name":"root","private":true,"workspaces":["packages/*"]}`)
	writeManifest(t, filepath.Join(root, "packages", "1-app"), `{"name":"app","dependencies":{"lib":"*"}}`)
	writeManifest(t, filepath.Join(root, "packages", "2-lib"), `{"name":"lib","dependencies":{"core":"*"}}`)
	writeManifest(t, filepath.Join(root, "packages", "3-core"), `{"name":"core"}`)
	writeManifest(t, filepath.Join(root, "packages", "4-docs"), `{"name":"docs"}`)

	ws, err := Load(root, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"app", "lib", "core", "docs"}, names(ws.Packages(ListOptions{})))
	assert.Equal(t, []string{"core", "lib", "app", "docs"}, names(ws.Packages(ListOptions{Toposort: true})))

	ws.SetPackageOrder([]string{"docs", "missing"})
	assert.Equal(t, []string{"docs", "core", "lib", "app"}, names(ws.Packages(ListOptions{Toposort: true})))

	assert.Equal(t, "root", ws.Root.Name)
	assert.Equal(t, []string{"packages/*"}, ws.Patterns)
	assert.Equal(t, []string{"app", "lib"}, names(ws.Dependents("core")))
}
