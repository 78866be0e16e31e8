package task

import (
	"context"
	"time"

	"github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/exec"
)

// Failure is a leaf that failed on its own.
type Failure struct {
	Task   Info
	Err    error
	Result *exec.Result
}

// Summary aggregates the terminal states of every leaf task.
type Summary struct {
	Total            int
	Succeeded        int
	Failed           int
	DependencyFailed int
	Skipped          int
	Duration         time.Duration
	Failures         []Failure
	Cancelled        bool
}

// OK reports whether no leaf failed literally and the run was not cancelled.
func (s Summary) OK() bool {
	return s.Failed == 0 && !s.Cancelled
}

// Err returns context.Canceled for a cancelled run, otherwise "N task(s)
// failed" when any leaf failed literally. Failures caused by a failed
// dependency are not counted.
func (s Summary) Err() error {
	if s.Cancelled {
		return context.Canceled
	}
	if s.Failed > 0 {
		return errors.NewTasksFailedError(s.Failed)
	}
	return nil
}
