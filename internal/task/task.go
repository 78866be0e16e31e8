package task

import (
	"context"
	"time"

	"github.com/felixgeelhaar/rman/internal/exec"
)

// Status is the lifecycle state of a task.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusSuccess
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Reason explains why a task failed.
type Reason string

const (
	ReasonNone Reason = ""
	// ReasonError is a literal failure of the task's own work.
	ReasonError Reason = "error"
	// ReasonDependency marks a task failed because a dependency failed.
	ReasonDependency Reason = "dependency failed"
	// ReasonSkipped marks a task that never ran because its group bailed.
	ReasonSkipped Reason = "skipped"
	// ReasonCancelled marks a task that never ran because the run was cancelled.
	ReasonCancelled Reason = "cancelled"
)

// Action is the work of a leaf task. A non-nil error or a failed Result
// marks the task failed.
type Action func(ctx context.Context) (*exec.Result, error)

// Meta describes what a task runs, for reporting.
type Meta struct {
	Package string
	Step    string
	Command string
	Dir     string
}

// Task is a node of the scheduling tree: either a leaf with an Action or a
// group of children.
type Task struct {
	Name     string
	Children []*Task
	Action   Action

	// Dependencies name tasks anywhere in the tree that must finish first.
	// Unknown names, the task itself, its ancestors and its descendants
	// are ignored.
	Dependencies []string

	// Weight is the number of concurrency slots a leaf occupies (default 1).
	Weight int

	// Exclusive tasks run alone.
	Exclusive bool
	// Serial groups run their children one at a time, in order.
	Serial bool
	// Bail groups stop starting children once one has failed.
	Bail bool

	Meta Meta

	parent   *Task
	deps     []*Task
	status   Status
	reason   Reason
	err      error
	result   *exec.Result
	started  time.Time
	finished time.Time
}

// NewLeaf creates a leaf task.
func NewLeaf(name string, action Action) *Task {
	return &Task{Name: name, Action: action}
}

// NewGroup creates a group task.
func NewGroup(name string, children ...*Task) *Task {
	return &Task{Name: name, Children: children}
}

// IsLeaf reports whether the task has no children.
func (t *Task) IsLeaf() bool {
	return len(t.Children) == 0 && t.Action != nil
}

// Status returns the task's current status.
func (t *Task) Status() Status { return t.status }

// Reason returns why the task failed, if it did.
func (t *Task) Reason() Reason { return t.reason }

// Err returns the task's failure, if any.
func (t *Task) Err() error { return t.err }

// Result returns the leaf's execution result, if it ran.
func (t *Task) Result() *exec.Result { return t.result }

// Duration returns how long the task ran.
func (t *Task) Duration() time.Duration {
	if t.started.IsZero() || t.finished.IsZero() {
		return 0
	}
	return t.finished.Sub(t.started)
}

// Parent returns the enclosing group.
func (t *Task) Parent() *Task { return t.parent }

// Walk visits t and its descendants in pre-order until fn returns false.
func (t *Task) Walk(fn func(*Task) bool) bool {
	if !fn(t) {
		return false
	}
	for _, c := range t.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Info returns a read-only snapshot of the task's identity.
func (t *Task) Info() Info {
	info := Info{
		Name:      t.Name,
		Meta:      t.Meta,
		Leaf:      t.IsLeaf(),
		Exclusive: t.Exclusive,
	}
	if t.parent != nil {
		info.Parent = t.parent.Name
	}
	return info
}

// isWithin reports whether t is anc or one of its descendants.
func (t *Task) isWithin(anc *Task) bool {
	for p := t; p != nil; p = p.parent {
		if p == anc {
			return true
		}
	}
	return false
}

func (t *Task) weight() int {
	if t.Weight < 1 {
		return 1
	}
	return t.Weight
}
