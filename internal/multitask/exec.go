package multitask

import (
	"context"

	"github.com/felixgeelhaar/rman/internal/task"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

// ExecBuilder runs one arbitrary command in every package.
type ExecBuilder struct {
	Engine  *Engine
	Command string
	Args    []string

	// Parallel drops dependency ordering between packages.
	Parallel bool
}

// PrepareTasks implements Builder.
func (b *ExecBuilder) PrepareTasks(_ context.Context, pkgs []*workspace.Package) ([]*task.Task, error) {
	display := b.Command
	if len(b.Args) > 0 {
		display += " " + quote(b.Args)
	}

	tasks := make([]*task.Task, 0, len(pkgs))
	for _, pkg := range pkgs {
		meta := task.Meta{Package: pkg.Name, Step: b.Command, Command: b.Command, Dir: pkg.Dir}
		leaf := task.NewLeaf(pkg.Name, b.Engine.Command(pkg.Name, meta, b.Args...))
		leaf.Meta = meta
		leaf.Meta.Command = display
		if !b.Parallel {
			leaf.Dependencies = pkg.Dependencies
		}
		tasks = append(tasks, leaf)
	}
	return tasks, nil
}
