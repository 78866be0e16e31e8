package multitask

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/task"
)

// FuncAction adapts in-process work to a task action. A returned error
// fails the task with exit code 1.
func FuncAction(fn func(ctx context.Context) error) task.Action {
	return func(ctx context.Context) (*exec.Result, error) {
		start := time.Now()
		err := fn(ctx)
		res := &exec.Result{Duration: time.Since(start)}
		if err != nil {
			res.ExitCode = 1
			res.Error = err
			res.Stderr = err.Error()
		}
		return res, nil
	}
}

// RemoveAction deletes names under dir. Missing entries are ignored.
func RemoveAction(dir string, names ...string) task.Action {
	return FuncAction(func(ctx context.Context) error {
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
				return err
			}
		}
		return nil
	})
}
