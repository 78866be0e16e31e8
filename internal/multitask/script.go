package multitask

import (
	"context"

	"github.com/felixgeelhaar/rman/internal/script"
	"github.com/felixgeelhaar/rman/internal/task"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

// Builtin is a step implemented by rman rather than a package script. It
// runs between the package's pre<script> and <script> entries.
type Builtin struct {
	// Label is the step name.
	Label string

	// Command describes the step in reports.
	Command string

	// Action returns the work for pkg, or nil to skip the step for it.
	Action func(pkg *workspace.Package) task.Action
}

// ScriptBuilder runs a script in every package that defines it, one
// serial group per package.
type ScriptBuilder struct {
	Engine *Engine
	Script string

	// Parallel drops dependency ordering between packages.
	Parallel bool

	// Root, when set, contributes its pre<script> and post<script> entries
	// as exclusive tasks around all packages.
	Root *workspace.Package

	// Builtin, when set, runs for every package even without a script.
	Builtin *Builtin

	// Exclusive runs one package group at a time.
	Exclusive bool
}

// PrepareTasks implements Builder.
func (b *ScriptBuilder) PrepareTasks(_ context.Context, pkgs []*workspace.Package) ([]*task.Task, error) {
	var groups []*task.Task
	for _, pkg := range pkgs {
		if g := b.packageTask(pkg); g != nil {
			groups = append(groups, g)
		}
	}

	pre, post := b.rootHooks()
	var tasks []*task.Task
	if pre != nil {
		for _, g := range groups {
			g.Dependencies = append(g.Dependencies, pre.Name)
		}
		tasks = append(tasks, pre)
	}
	tasks = append(tasks, groups...)
	if post != nil {
		post.Dependencies = names(tasks)
		tasks = append(tasks, post)
	}
	return tasks, nil
}

func (b *ScriptBuilder) packageTask(pkg *workspace.Package) *task.Task {
	steps := script.Extract(pkg.Scripts, b.Script)

	var deps []string
	if !b.Parallel {
		deps = pkg.Dependencies
	}

	var leaves []*task.Task
	builtinDone := b.Builtin == nil
	addBuiltin := func() {
		builtinDone = true
		action := b.Builtin.Action(pkg)
		if action == nil {
			return
		}
		leaf := task.NewLeaf(pkg.Name+":"+b.Builtin.Label, action)
		leaf.Meta = task.Meta{Package: pkg.Name, Step: b.Builtin.Label, Command: b.Builtin.Command, Dir: pkg.Dir}
		leaf.Dependencies = deps
		leaves = append(leaves, leaf)
	}

	for _, step := range steps {
		if !builtinDone && step.Name != "pre"+b.Script {
			addBuiltin()
		}
		name := pkg.Name + ":" + step.Name
		meta := task.Meta{Package: pkg.Name, Step: step.Name, Command: step.Command, Dir: pkg.Dir}
		leaf := task.NewLeaf(name, b.Engine.Command(name, meta))
		leaf.Meta = meta
		if step.WaitDependencies {
			leaf.Dependencies = deps
		}
		leaves = append(leaves, leaf)
	}
	if !builtinDone {
		addBuiltin()
	}

	if len(leaves) == 0 {
		return nil
	}
	g := task.NewGroup(pkg.Name, leaves...)
	g.Serial = true
	g.Bail = true
	g.Exclusive = b.Exclusive
	return g
}

// rootHooks returns exclusive serial groups for the root manifest's
// pre<script> and post<script> entries. Either may be nil.
func (b *ScriptBuilder) rootHooks() (pre, post *task.Task) {
	if b.Root == nil {
		return nil, nil
	}
	prefix := b.Root.Name
	if prefix == "" {
		prefix = "root"
	}

	var preLeaves, postLeaves []*task.Task
	for _, step := range script.Extract(b.Root.Scripts, b.Script) {
		name := prefix + ":" + step.Name
		meta := task.Meta{Package: prefix, Step: step.Name, Command: step.Command, Dir: b.Root.Dir}
		leaf := task.NewLeaf(name, b.Engine.Command(name, meta))
		leaf.Meta = meta

		switch step.Name {
		case "pre" + b.Script:
			preLeaves = append(preLeaves, leaf)
		case "post" + b.Script:
			postLeaves = append(postLeaves, leaf)
		}
	}
	return hookGroup(prefix+":pre"+b.Script, preLeaves), hookGroup(prefix+":post"+b.Script, postLeaves)
}

func hookGroup(name string, leaves []*task.Task) *task.Task {
	if len(leaves) == 0 {
		return nil
	}
	g := task.NewGroup(name, leaves...)
	g.Serial = true
	g.Bail = true
	g.Exclusive = true
	return g
}

func names(tasks []*task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Name
	}
	return out
}
