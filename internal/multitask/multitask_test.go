//go:build unix

package multitask

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/log"
	"github.com/felixgeelhaar/rman/internal/task"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

func pkg(t *testing.T, root, name string, scripts map[string]string, deps ...string) *workspace.Package {
	t.Helper()
	dir := filepath.Join(root, "packages", name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return &workspace.Package{Name: name, Version: "1.0.0", Dir: dir, Scripts: scripts, Dependencies: deps}
}

func taskNames(tasks []*task.Task) []string {
	var out []string
	for _, t := range tasks {
		out = append(out, t.Name)
	}
	return out
}

func newEngine(out *bytes.Buffer, opts Options) *Engine {
	return New(exec.NewRunner(), nil, out, opts)
}

func TestScriptBuilderShape(t *testing.T) {
	root := t.TempDir()
	a := pkg(t, root, "a", map[string]string{"prebuild": "echo pre", "build": "echo a && echo b", "postbuild": "echo post"})
	b := pkg(t, root, "b", map[string]string{"build": "echo b"}, "a")
	c := pkg(t, root, "c", map[string]string{"test": "echo c"})
	rootPkg := &workspace.Package{Name: "mono", Dir: root, Scripts: map[string]string{
		"prebuild":  "echo root-pre",
		"build":     "echo never",
		"postbuild": "echo root-post",
	}}

	builder := &ScriptBuilder{Engine: newEngine(&bytes.Buffer{}, Options{}), Script: "build", Root: rootPkg}
	tasks, err := builder.PrepareTasks(context.Background(), []*workspace.Package{a, b, c})
	require.NoError(t, err)

	assert.Equal(t, []string{"mono:prebuild", "a", "b", "mono:postbuild"}, taskNames(tasks))

	pre := tasks[0]
	assert.True(t, pre.Exclusive)
	assert.True(t, pre.Serial)
	require.Len(t, pre.Children, 1)
	assert.Equal(t, "echo root-pre", pre.Children[0].Meta.Command)

	ga := tasks[1]
	assert.True(t, ga.Serial)
	assert.True(t, ga.Bail)
	assert.Equal(t, []string{"mono:prebuild"}, ga.Dependencies)
	assert.Equal(t, []string{"a:prebuild", "a:build", "a:build", "a:postbuild"}, taskNames(ga.Children))
	assert.Empty(t, ga.Children[0].Dependencies, "pre hooks do not wait for dependencies")
	assert.Empty(t, ga.Children[1].Dependencies, "a has no dependencies")
	assert.Equal(t, "echo b", ga.Children[2].Meta.Command)

	gb := tasks[2]
	require.Len(t, gb.Children, 1)
	assert.Equal(t, []string{"a"}, gb.Children[0].Dependencies)
	assert.Equal(t, "b", gb.Children[0].Meta.Package)
	assert.Equal(t, b.Dir, gb.Children[0].Meta.Dir)

	assert.Equal(t, []string{"mono:prebuild", "a", "b"}, tasks[3].Dependencies)
}

func TestScriptBuilderParallel(t *testing.T) {
	root := t.TempDir()
	b := pkg(t, root, "b", map[string]string{"build": "echo b"}, "a")

	builder := &ScriptBuilder{Engine: newEngine(&bytes.Buffer{}, Options{}), Script: "build", Parallel: true}
	tasks, err := builder.PrepareTasks(context.Background(), []*workspace.Package{b})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Empty(t, tasks[0].Children[0].Dependencies)
}

func TestScriptBuilderBuiltin(t *testing.T) {
	root := t.TempDir()
	a := pkg(t, root, "a", map[string]string{"preversion": "echo pre", "version": "echo main", "postversion": "echo post"}, "z")
	b := pkg(t, root, "b", nil)
	skipped := pkg(t, root, "skipped", nil)

	builtin := &Builtin{
		Label:   "version",
		Command: "set version",
		Action: func(p *workspace.Package) task.Action {
			if p.Name == "skipped" {
				return nil
			}
			return func(context.Context) (*exec.Result, error) { return &exec.Result{}, nil }
		},
	}
	builder := &ScriptBuilder{Engine: newEngine(&bytes.Buffer{}, Options{}), Script: "version", Builtin: builtin, Exclusive: true}
	tasks, err := builder.PrepareTasks(context.Background(), []*workspace.Package{a, b, skipped})
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b"}, taskNames(tasks))
	assert.True(t, tasks[0].Exclusive)

	children := tasks[0].Children
	assert.Equal(t, []string{"a:preversion", "a:version", "a:version", "a:postversion"}, taskNames(children))
	assert.Equal(t, "set version", children[1].Meta.Command)
	assert.Equal(t, []string{"z"}, children[1].Dependencies)
	assert.Equal(t, "echo main", children[2].Meta.Command)

	require.Len(t, tasks[1].Children, 1)
	assert.Equal(t, "b:version", tasks[1].Children[0].Name)
}

func TestEngineRunsInDependencyOrder(t *testing.T) {
	root := t.TempDir()
	logFile := filepath.Join(root, "order.log")
	rec := func(s string) string { return "echo " + s + " >> " + logFile }

	a := pkg(t, root, "a", map[string]string{"build": "sleep 0.2 && " + rec("a")})
	b := pkg(t, root, "b", map[string]string{"build": rec("b")}, "a")
	rootPkg := &workspace.Package{Name: "mono", Dir: root, Scripts: map[string]string{
		"prebuild":  rec("pre"),
		"postbuild": rec("post"),
	}}

	var out bytes.Buffer
	engine := newEngine(&out, Options{Name: "run build", Concurrency: 4, Bail: true, JSON: true})
	summary, err := engine.Run(context.Background(), &ScriptBuilder{Engine: engine, Script: "build", Root: rootPkg}, []*workspace.Package{b, a})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 4, summary.Succeeded)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "pre\na\nb\npost\n", string(data))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines[0], `"event":"plan"`)
	assert.Contains(t, lines[len(lines)-1], `"event":"summary"`)
}

func TestEngineExclusiveBuiltinFollowsDependencies(t *testing.T) {
	root := t.TempDir()
	app := pkg(t, root, "app", map[string]string{"preversion": "echo pre"}, "zlib")
	mid := pkg(t, root, "mid", nil)
	zlib := pkg(t, root, "zlib", nil)

	var (
		mu    sync.Mutex
		order []string
	)
	builtin := &Builtin{
		Label:   "version",
		Command: "set version",
		Action: func(p *workspace.Package) task.Action {
			return FuncAction(func(context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, p.Name)
				return nil
			})
		},
	}

	var logs bytes.Buffer
	logger := log.New(log.Config{Level: log.LevelDebug, Output: log.NewOutput(&logs)})
	engine := New(exec.NewRunner(), logger, &bytes.Buffer{}, Options{Name: "version", Concurrency: 4, Bail: true})
	builder := &ScriptBuilder{Engine: engine, Script: "version", Builtin: builtin, Exclusive: true}

	summary, err := engine.Run(context.Background(), builder, []*workspace.Package{app, mid, zlib})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Succeeded)

	require.Len(t, order, 3)
	assert.Less(t, indexOf(order, "zlib"), indexOf(order, "app"))
	assert.NotContains(t, logs.String(), "circular dependency")
}

func indexOf(list []string, item string) int {
	for i, v := range list {
		if v == item {
			return i
		}
	}
	return -1
}

func TestEngineBailsOnFailedDependency(t *testing.T) {
	root := t.TempDir()
	a := pkg(t, root, "a", map[string]string{"build": "echo broken >&2; exit 3"})
	b := pkg(t, root, "b", map[string]string{"build": "echo b"}, "a")
	c := pkg(t, root, "c", map[string]string{"build": "echo c"})

	var out bytes.Buffer
	engine := newEngine(&out, Options{Name: "run build", Bail: true})
	summary, err := engine.Run(context.Background(), &ScriptBuilder{Engine: engine, Script: "build"}, []*workspace.Package{a, b, c})

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTasksFailed))
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.DependencyFailed)
	assert.Equal(t, 1, summary.Succeeded)

	require.Len(t, summary.Failures, 1)
	assert.Equal(t, 3, summary.Failures[0].Result.ExitCode)
	assert.Contains(t, summary.Failures[0].Result.Stderr, "broken")

	text := out.String()
	assert.Contains(t, text, "✗ a:build")
	assert.Contains(t, text, "⊘ b:build dependency failed")
	assert.Contains(t, text, "a:build │ broken")
}

func TestEngineNoTasks(t *testing.T) {
	var out bytes.Buffer
	engine := newEngine(&out, Options{Name: "run missing"})
	summary, err := engine.Run(context.Background(), &ScriptBuilder{Engine: engine, Script: "missing"},
		[]*workspace.Package{pkg(t, t.TempDir(), "a", map[string]string{"build": "true"})})

	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Empty(t, out.String())
}

func TestEngineBuilderError(t *testing.T) {
	engine := newEngine(&bytes.Buffer{}, Options{})
	_, err := engine.Run(context.Background(), BuilderFunc(func(context.Context, []*workspace.Package) ([]*task.Task, error) {
		return nil, errors.NewConfigError(".rmanrc", assert.AnError)
	}), nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestExecBuilder(t *testing.T) {
	root := t.TempDir()
	a := pkg(t, root, "a", nil)
	b := pkg(t, root, "b", nil, "a")

	var out bytes.Buffer
	engine := newEngine(&out, Options{Name: "exec", Concurrency: 2, Bail: true})
	builder := &ExecBuilder{Engine: engine, Command: "echo", Args: []string{"hello world", "$HOME"}}

	tasks, err := builder.PrepareTasks(context.Background(), []*workspace.Package{a, b})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, []string{"a"}, tasks[1].Dependencies)
	assert.Equal(t, "echo 'hello world' '$HOME'", tasks[0].Meta.Command)

	summary, err := engine.Run(context.Background(), builder, []*workspace.Package{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Contains(t, out.String(), "a │ hello world $HOME")
	assert.Contains(t, out.String(), "b │ hello world $HOME")
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "a 'b c' '' 'it'\\''s'", quote([]string{"a", "b c", "", "it's"}))
}
