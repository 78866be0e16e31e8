package task

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/log"
)

// Options configures a Scheduler.
type Options struct {
	// Concurrency bounds the total weight of running leaves.
	// Defaults to the number of logical CPUs.
	Concurrency int

	// Bail fails a task without running it when one of its dependencies
	// failed. Without Bail, failed dependencies are ignored.
	Bail bool

	Observer Observer
	Logger   *log.Logger
}

// Scheduler runs a task tree.
//
// All task state is owned by the dispatch loop in Run. Leaf actions run in
// their own goroutines and report back over a channel; after every
// completion the loop rescans the tree in pre-order and admits whatever is
// ready.
type Scheduler struct {
	root     *Task
	limit    int
	bail     bool
	observer Observer
	logger   *log.Logger

	byName    map[string]*Task
	events    chan completion
	load      int
	inflight  int
	exclusive *Task
	halted    bool
	blocked   []*Task
	forced    map[*Task]bool

	// gates holds, for every exclusive group, the dependencies of its
	// descendants that lie outside the group.
	gates map[*Task][]*Task
}

type completion struct {
	task   *Task
	result *exec.Result
	err    error
}

// New creates a scheduler for the tree under root.
func New(root *Task, opts Options) *Scheduler {
	limit := opts.Concurrency
	if limit < 1 {
		limit = runtime.NumCPU()
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if root.IsLeaf() {
		root = NewGroup(root.Name, root)
	}
	return &Scheduler{
		root:     root,
		limit:    limit,
		bail:     opts.Bail,
		observer: observer,
		logger:   logger,
	}
}

// Run executes the tree and returns once every task is terminal. Task
// failures are reported in the Summary, never returned as errors.
// Cancelling ctx stops new work; running actions are expected to observe
// ctx and return.
func (s *Scheduler) Run(ctx context.Context) Summary {
	start := time.Now()
	leaves := s.prepare()

	plan := Plan{
		Root:        s.root.Info(),
		Leaves:      leaves,
		Concurrency: s.limit,
		Fingerprint: Fingerprint(s.root),
		Started:     start,
	}
	s.logger.DebugContext(ctx, "scheduling tasks", "tasks", len(leaves), "concurrency", s.limit, "fingerprint", plan.Fingerprint)
	s.observer.Start(plan)

	s.transition(s.root, StatusRunning, ReasonNone, nil)
	s.settle(s.root)

	done := ctx.Done()
	cancelled := false
	for !s.root.status.Terminal() {
		for s.pass(ctx) {
		}
		if s.root.status.Terminal() {
			break
		}

		if s.inflight == 0 {
			if cancelled {
				s.abandon(s.root, ReasonCancelled)
				continue
			}
			if !s.breakCycle(ctx) {
				s.abandon(s.root, ReasonSkipped)
			}
			continue
		}

		select {
		case c := <-s.events:
			s.complete(c)
		case <-done:
			done = nil
			cancelled = true
			s.logger.DebugContext(ctx, "run cancelled, waiting for running tasks", "running", s.inflight)
			s.abandon(s.root, ReasonCancelled)
		}
	}

	summary := s.summarize(start, cancelled)
	s.observer.Finish(summary)
	return summary
}

// prepare links parents, resets runtime state and resolves dependencies.
// It returns the leaves in pre-order.
func (s *Scheduler) prepare() []Info {
	s.byName = make(map[string]*Task)
	s.forced = make(map[*Task]bool)
	s.gates = make(map[*Task][]*Task)
	s.load, s.inflight, s.exclusive = 0, 0, nil

	var leaves []Info
	var link func(t, parent *Task)
	link = func(t, parent *Task) {
		t.parent = parent
		t.status, t.reason, t.err, t.result = StatusIdle, ReasonNone, nil, nil
		t.started, t.finished = time.Time{}, time.Time{}
		if _, dup := s.byName[t.Name]; !dup {
			s.byName[t.Name] = t
		}
		for _, c := range t.Children {
			link(c, t)
		}
	}
	link(s.root, nil)

	s.root.Walk(func(t *Task) bool {
		t.deps = t.deps[:0]
		seen := make(map[*Task]bool)
		for _, name := range t.Dependencies {
			d, ok := s.byName[name]
			if !ok || seen[d] || d.isWithin(t) || t.isWithin(d) {
				continue
			}
			seen[d] = true
			t.deps = append(t.deps, d)
		}
		if t.IsLeaf() {
			leaves = append(leaves, t.Info())
		}
		return true
	})

	s.root.Walk(func(t *Task) bool {
		if t.Exclusive && !t.IsLeaf() {
			s.gates[t] = outsideDeps(t)
		}
		return true
	})

	s.events = make(chan completion, len(leaves)+1)
	return leaves
}

// outsideDeps returns the dependencies of g's descendants that are not
// part of g and not already dependencies of g itself. Once an exclusive
// group is admitted nothing outside it can start, so it must not be
// admitted before these are terminal.
func outsideDeps(g *Task) []*Task {
	seen := make(map[*Task]bool, len(g.deps))
	for _, d := range g.deps {
		seen[d] = true
	}
	var out []*Task
	g.Walk(func(t *Task) bool {
		if t == g {
			return true
		}
		for _, d := range t.deps {
			if seen[d] || d.isWithin(g) {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
		return true
	})
	return out
}

// pass scans the tree once and reports whether any task changed state.
func (s *Scheduler) pass(ctx context.Context) bool {
	s.halted = false
	s.blocked = s.blocked[:0]
	changed := false

	switch {
	case s.exclusive == nil:
		s.visit(ctx, s.root, &changed)
	case !s.exclusive.IsLeaf() && s.exclusive.status == StatusRunning:
		s.visit(ctx, s.exclusive, &changed)
	}
	return changed
}

func (s *Scheduler) visit(ctx context.Context, parent *Task, changed *bool) {
	for _, child := range parent.Children {
		if s.halted || parent.status != StatusRunning {
			return
		}

		switch child.status {
		case StatusSuccess, StatusFailed:
			continue
		case StatusRunning:
			if !child.IsLeaf() {
				s.visit(ctx, child, changed)
			}
		case StatusIdle:
			if s.tryAdmit(ctx, child, changed) && !child.IsLeaf() && child.status == StatusRunning {
				s.visit(ctx, child, changed)
			}
		}

		if parent.Serial && !child.status.Terminal() {
			return
		}
	}
}

// tryAdmit starts t if its dependencies allow it and capacity is free.
func (s *Scheduler) tryAdmit(ctx context.Context, t *Task, changed *bool) bool {
	if !s.forced[t] {
		pending := false
		for _, d := range t.deps {
			switch d.status {
			case StatusSuccess:
			case StatusFailed:
				if s.bail {
					s.fail(t, ReasonDependency, errors.NewDependencyFailedError(t.Name, d.Name))
					*changed = true
					return false
				}
			default:
				pending = true
			}
		}
		// Failed gates are left to the descendant that declares them.
		for _, d := range s.gates[t] {
			if !d.status.Terminal() {
				pending = true
			}
		}
		if pending {
			s.blocked = append(s.blocked, t)
			return false
		}
	}

	if s.exclusive != nil && !t.isWithin(s.exclusive) {
		s.halted = true
		return false
	}
	if t.Exclusive && s.load > 0 {
		s.halted = true
		return false
	}

	if !t.IsLeaf() {
		s.transition(t, StatusRunning, ReasonNone, nil)
		if t.Exclusive {
			s.exclusive = t
		}
		*changed = true
		s.settle(t)
		return true
	}

	w := min(t.weight(), s.limit)
	if s.load+w > s.limit {
		s.halted = true
		return false
	}

	s.load += w
	s.inflight++
	if t.Exclusive {
		s.exclusive = t
	}
	s.transition(t, StatusRunning, ReasonNone, nil)
	*changed = true

	go s.execute(ctx, t)
	return true
}

func (s *Scheduler) execute(ctx context.Context, t *Task) {
	var (
		result *exec.Result
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.New(errors.ErrCodeTaskPanic, fmt.Sprintf("task %s panicked: %v", t.Name, r))
			}
		}()
		result, err = t.Action(ctx)
	}()
	s.events <- completion{task: t, result: result, err: err}
}

// complete records a finished leaf.
func (s *Scheduler) complete(c completion) {
	t := c.task
	s.load -= min(t.weight(), s.limit)
	s.inflight--
	if s.exclusive == t {
		s.exclusive = nil
	}

	t.result = c.result
	err := c.err
	if err == nil && c.result.Failed() {
		err = c.result.Error
		if err == nil {
			err = errors.NewCommandExecutionError(t.Meta.Command, c.result.ExitCode, nil)
		}
	}

	if err != nil {
		s.transition(t, StatusFailed, ReasonError, err)
	} else {
		s.transition(t, StatusSuccess, ReasonNone, nil)
	}
	s.afterFinish(t)
}

// fail marks an idle task failed without running it. Idle descendants are
// skipped.
func (s *Scheduler) fail(t *Task, reason Reason, err error) {
	s.transition(t, StatusFailed, reason, err)
	for _, c := range t.Children {
		s.abandonIdle(c, ReasonSkipped)
	}
	s.afterFinish(t)
}

// afterFinish applies the parent's bail policy and settles ancestors.
func (s *Scheduler) afterFinish(t *Task) {
	parent := t.parent
	if parent == nil {
		return
	}
	if t.status == StatusFailed && parent.Bail {
		for _, sib := range parent.Children {
			if sib != t && sib.status == StatusIdle {
				s.abandonIdle(sib, ReasonSkipped)
			}
		}
	}
	s.settle(parent)
}

// settle finishes a running group once all of its children are terminal.
func (s *Scheduler) settle(g *Task) {
	if g.status != StatusRunning || g.IsLeaf() {
		return
	}

	failed := 0
	for _, c := range g.Children {
		if !c.status.Terminal() {
			return
		}
		if c.status == StatusFailed {
			failed++
		}
	}

	if s.exclusive == g {
		s.exclusive = nil
	}
	if failed > 0 {
		s.transition(g, StatusFailed, ReasonError, fmt.Errorf("%d of %d tasks in %s failed", failed, len(g.Children), g.Name))
	} else {
		s.transition(g, StatusSuccess, ReasonNone, nil)
	}
	s.afterFinish(g)
}

// abandonIdle fails t and its idle descendants with reason, without
// settling ancestors.
func (s *Scheduler) abandonIdle(t *Task, reason Reason) {
	if t.status != StatusIdle {
		return
	}
	s.transition(t, StatusFailed, reason, nil)
	for _, c := range t.Children {
		s.abandonIdle(c, reason)
	}
}

// abandon fails every idle task under g and settles the groups that are
// left with only terminal children.
func (s *Scheduler) abandon(g *Task, reason Reason) {
	for _, c := range g.Children {
		switch c.status {
		case StatusIdle:
			s.abandonIdle(c, reason)
		case StatusRunning:
			if !c.IsLeaf() {
				s.abandon(c, reason)
			}
		}
	}
	s.settle(g)
}

// breakCycle admits the first task blocked only on unfinished
// dependencies. With nothing running, those dependencies can only be
// waiting on each other.
func (s *Scheduler) breakCycle(ctx context.Context) bool {
	if len(s.blocked) == 0 {
		return false
	}
	t := s.blocked[0]
	s.forced[t] = true
	s.logger.WarnContext(ctx, "circular dependency detected, starting task anyway", "task", t.Name)
	return true
}

func (s *Scheduler) transition(t *Task, to Status, reason Reason, err error) {
	from := t.status
	now := time.Now()
	switch to {
	case StatusRunning:
		t.started = now
	case StatusSuccess, StatusFailed:
		t.finished = now
	}
	t.status, t.reason, t.err = to, reason, err

	s.observer.TaskChanged(Event{
		Task:     t.Info(),
		From:     from,
		To:       to,
		Reason:   reason,
		Err:      err,
		Result:   t.result,
		Duration: t.Duration(),
		Time:     now,
	})
}

func (s *Scheduler) summarize(start time.Time, cancelled bool) Summary {
	summary := Summary{Duration: time.Since(start), Cancelled: cancelled}
	s.root.Walk(func(t *Task) bool {
		if !t.IsLeaf() {
			return true
		}
		summary.Total++
		switch {
		case t.status == StatusSuccess:
			summary.Succeeded++
		case t.reason == ReasonError:
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{Task: t.Info(), Err: t.err, Result: t.result})
		case t.reason == ReasonDependency:
			summary.DependencyFailed++
		default:
			summary.Skipped++
		}
		return true
	})
	return summary
}
