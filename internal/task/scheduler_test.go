package task

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/log"
)

type recorder struct {
	mu      sync.Mutex
	plan    Plan
	events  []Event
	summary Summary
}

func (r *recorder) Start(plan Plan) { r.plan = plan }

func (r *recorder) TaskChanged(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Finish(summary Summary) { r.summary = summary }

// leafEvents returns "name:status" for every leaf transition, in order.
func (r *recorder) leafEvents() []string {
	var out []string
	for _, ev := range r.events {
		if ev.Task.Leaf {
			out = append(out, ev.Task.Name+":"+ev.To.String())
		}
	}
	return out
}

func indexOf(list []string, item string) int {
	for i, v := range list {
		if v == item {
			return i
		}
	}
	return -1
}

func succeed() Action {
	return func(context.Context) (*exec.Result, error) {
		return &exec.Result{}, nil
	}
}

func failWith(code int) Action {
	return func(context.Context) (*exec.Result, error) {
		return &exec.Result{ExitCode: code, Stderr: "boom\n"}, nil
	}
}

func counted(calls *atomic.Int32, action Action) Action {
	return func(ctx context.Context) (*exec.Result, error) {
		calls.Add(1)
		return action(ctx)
	}
}

// packageTree builds root -> {A: [A:build], B: [B:build depends on A]}.
func packageTree(aBuild, bBuild Action, bDeps ...string) (*Task, *Task, *Task) {
	aLeaf := NewLeaf("A:build", aBuild)
	bLeaf := NewLeaf("B:build", bBuild)
	bLeaf.Dependencies = bDeps

	a := NewGroup("A", aLeaf)
	a.Serial, a.Bail = true, true
	b := NewGroup("B", bLeaf)
	b.Serial, b.Bail = true, true

	return NewGroup("root", a, b), aLeaf, bLeaf
}

func assertAllTerminal(t *testing.T, root *Task) {
	t.Helper()
	root.Walk(func(task *Task) bool {
		assert.True(t, task.Status().Terminal(), "task %s left %s", task.Name, task.Status())
		return true
	})
}

func TestDependencyFailurePropagatesWithBail(t *testing.T) {
	var bCalls atomic.Int32
	root, aLeaf, bLeaf := packageTree(failWith(2), counted(&bCalls, succeed()), "A")
	rec := &recorder{}

	summary := New(root, Options{Concurrency: 4, Bail: true, Observer: rec}).Run(context.Background())

	assert.Equal(t, StatusFailed, aLeaf.Status())
	assert.Equal(t, ReasonError, aLeaf.Reason())
	assert.Equal(t, StatusFailed, bLeaf.Status())
	assert.Equal(t, ReasonDependency, bLeaf.Reason())
	assert.True(t, errors.Is(bLeaf.Err(), rerrors.ErrDependencyFailed))
	assert.Equal(t, int32(0), bCalls.Load())

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.DependencyFailed)
	assert.Equal(t, 2, summary.Total)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "A:build", summary.Failures[0].Task.Name)
	assert.Equal(t, "boom\n", summary.Failures[0].Result.Stderr)
	require.Error(t, summary.Err())
	assert.Contains(t, summary.Err().Error(), "1 task failed")

	assert.Equal(t, StatusFailed, root.Status())
	assert.Equal(t, summary, rec.summary)
	assertAllTerminal(t, root)
}

func TestDependencyFailureIgnoredWithoutBail(t *testing.T) {
	var bCalls atomic.Int32
	root, aLeaf, bLeaf := packageTree(failWith(1), counted(&bCalls, succeed()), "A")

	summary := New(root, Options{Concurrency: 4, Bail: false}).Run(context.Background())

	assert.Equal(t, StatusFailed, aLeaf.Status())
	assert.Equal(t, StatusSuccess, bLeaf.Status())
	assert.Equal(t, int32(1), bCalls.Load())
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.DependencyFailed)
	assert.False(t, summary.OK())
	assertAllTerminal(t, root)
}

func TestDependencyOrdering(t *testing.T) {
	root, _, _ := packageTree(succeed(), succeed(), "A")
	rec := &recorder{}

	summary := New(root, Options{Concurrency: 4, Bail: true, Observer: rec}).Run(context.Background())

	require.True(t, summary.OK())
	events := rec.leafEvents()
	aDone := indexOf(events, "A:build:success")
	bStart := indexOf(events, "B:build:running")
	require.NotEqual(t, -1, aDone)
	require.NotEqual(t, -1, bStart)
	assert.Less(t, aDone, bStart)
}

func TestParallelAdmitsIndependentTasksTogether(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	both := make(chan struct{})

	blocking := func(context.Context) (*exec.Result, error) {
		started.Done()
		<-release
		return &exec.Result{}, nil
	}

	// No dependency names: dependency ordering is disabled.
	root, aLeaf, bLeaf := packageTree(blocking, blocking)

	go func() {
		started.Wait()
		close(both)
	}()

	done := make(chan Summary, 1)
	go func() {
		done <- New(root, Options{Concurrency: 4, Bail: true}).Run(context.Background())
	}()

	select {
	case <-both:
	case <-time.After(5 * time.Second):
		t.Fatal("independent tasks were not running at the same time")
	}
	close(release)

	summary := <-done
	assert.True(t, summary.OK())
	assert.Equal(t, StatusSuccess, aLeaf.Status())
	assert.Equal(t, StatusSuccess, bLeaf.Status())
}

func TestConcurrencyBound(t *testing.T) {
	var running, peak atomic.Int32
	action := func(context.Context) (*exec.Result, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return &exec.Result{}, nil
	}

	var children []*Task
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		children = append(children, NewLeaf(name, action))
	}
	heavy := NewLeaf("heavy", action)
	heavy.Weight = 2
	children = append(children, heavy)
	root := NewGroup("root", children...)

	summary := New(root, Options{Concurrency: 3}).Run(context.Background())

	assert.True(t, summary.OK())
	assert.Equal(t, 9, summary.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestExclusiveRunsAlone(t *testing.T) {
	var running atomic.Int32
	var overlap atomic.Bool
	action := func(exclusive bool) Action {
		return func(context.Context) (*exec.Result, error) {
			n := running.Add(1)
			if exclusive && n > 1 {
				overlap.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			if exclusive && running.Load() > 1 {
				overlap.Store(true)
			}
			running.Add(-1)
			return &exec.Result{}, nil
		}
	}

	ex := NewLeaf("exclusive", action(true))
	ex.Exclusive = true
	root := NewGroup("root",
		NewLeaf("a", action(false)),
		NewLeaf("b", action(false)),
		ex,
		NewLeaf("c", action(false)),
		NewLeaf("d", action(false)),
	)
	rec := &recorder{}

	summary := New(root, Options{Concurrency: 8, Observer: rec}).Run(context.Background())

	assert.True(t, summary.OK())
	assert.False(t, overlap.Load())

	events := rec.leafEvents()
	start := indexOf(events, "exclusive:running")
	end := indexOf(events, "exclusive:success")
	require.Less(t, start, end)
	for _, ev := range events[start+1 : end] {
		assert.NotContains(t, ev, ":running", "task started while exclusive task ran")
	}
}

func TestSerialGroupBails(t *testing.T) {
	tests := []struct {
		name       string
		bail       bool
		wantThird  Status
		wantReason Reason
		wantCalls  int32
	}{
		{name: "bail stops later steps", bail: true, wantThird: StatusFailed, wantReason: ReasonSkipped, wantCalls: 0},
		{name: "no bail continues", bail: false, wantThird: StatusSuccess, wantReason: ReasonNone, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			third := NewLeaf("pkg:post", counted(&calls, succeed()))
			group := NewGroup("pkg",
				NewLeaf("pkg:pre", succeed()),
				NewLeaf("pkg:main", failWith(1)),
				third,
			)
			group.Serial, group.Bail = true, tt.bail

			summary := New(NewGroup("root", group), Options{Concurrency: 4, Bail: true}).Run(context.Background())

			assert.Equal(t, tt.wantThird, third.Status())
			assert.Equal(t, tt.wantReason, third.Reason())
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Equal(t, 1, summary.Failed)
			assert.Equal(t, StatusFailed, group.Status())
		})
	}
}

func TestSerialGroupOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	step := func(name string) *Task {
		return NewLeaf(name, func(context.Context) (*exec.Result, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return &exec.Result{}, nil
		})
	}
	group := NewGroup("pkg", step("1"), step("2"), step("3"), step("4"))
	group.Serial = true

	summary := New(NewGroup("root", group), Options{Concurrency: 8}).Run(context.Background())

	assert.True(t, summary.OK())
	assert.Equal(t, []string{"1", "2", "3", "4"}, order)
}

func TestEmptyGroupDoesNotBlock(t *testing.T) {
	empty := NewGroup("A")
	leaf := NewLeaf("B:build", succeed())
	leaf.Dependencies = []string{"A"}
	root := NewGroup("root", empty, NewGroup("B", leaf))

	summary := New(root, Options{Bail: true}).Run(context.Background())

	assert.True(t, summary.OK())
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, StatusSuccess, empty.Status())
	assert.Equal(t, StatusSuccess, leaf.Status())
}

func TestEmptyRoot(t *testing.T) {
	root := NewGroup("root")
	summary := New(root, Options{}).Run(context.Background())

	assert.True(t, summary.OK())
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, StatusSuccess, root.Status())
}

func bufferLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(log.Config{Level: log.LevelDebug, Output: log.NewOutput(buf)})
}

// exclusivePackage builds an exclusive serial group with one step that
// depends on deps, the shape of a version run.
func exclusivePackage(name string, action Action, deps ...string) *Task {
	step := NewLeaf(name+":version", action)
	step.Dependencies = deps
	g := NewGroup(name, step)
	g.Exclusive = true
	g.Serial = true
	g.Bail = true
	return g
}

func TestExclusiveGroupsWaitForOutsideDependencies(t *testing.T) {
	root := NewGroup("root",
		exclusivePackage("app", succeed(), "zlib"),
		exclusivePackage("mid", succeed()),
		exclusivePackage("zlib", succeed()),
	)
	rec := &recorder{}
	var logs bytes.Buffer

	summary := New(root, Options{Concurrency: 4, Bail: true, Observer: rec, Logger: bufferLogger(&logs)}).Run(context.Background())

	require.True(t, summary.OK())
	assert.Equal(t, 3, summary.Succeeded)
	events := rec.leafEvents()
	assert.Less(t, indexOf(events, "zlib:version:success"), indexOf(events, "app:version:running"))
	assert.NotContains(t, logs.String(), "circular dependency")
	assertAllTerminal(t, root)
}

func TestExclusiveGroupOutsideDependencyFails(t *testing.T) {
	var calls atomic.Int32
	root := NewGroup("root",
		exclusivePackage("app", counted(&calls, succeed()), "zlib"),
		exclusivePackage("zlib", failWith(1)),
	)

	summary := New(root, Options{Bail: true}).Run(context.Background())

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.DependencyFailed)
	assertAllTerminal(t, root)
}

func TestExclusiveGroupCycleIsBroken(t *testing.T) {
	root := NewGroup("root",
		exclusivePackage("a", succeed(), "b"),
		exclusivePackage("b", succeed(), "a"),
	)
	var logs bytes.Buffer

	summary := New(root, Options{Bail: true, Logger: bufferLogger(&logs)}).Run(context.Background())

	assert.True(t, summary.OK())
	assert.Equal(t, 2, summary.Succeeded)
	assert.Contains(t, logs.String(), "circular dependency")
	assertAllTerminal(t, root)
}

func TestCyclicDependenciesAreTolerated(t *testing.T) {
	a := NewLeaf("A:build", succeed())
	a.Dependencies = []string{"B"}
	b := NewLeaf("B:build", succeed())
	b.Dependencies = []string{"A"}
	root := NewGroup("root", NewGroup("A", a), NewGroup("B", b))
	var logs bytes.Buffer

	summary := New(root, Options{Bail: true, Logger: bufferLogger(&logs)}).Run(context.Background())

	assert.True(t, summary.OK())
	assert.Equal(t, 2, summary.Succeeded)
	assert.Contains(t, logs.String(), "circular dependency")
	assertAllTerminal(t, root)
}

func TestSelfAndUnknownDependenciesIgnored(t *testing.T) {
	leaf := NewLeaf("A:build", succeed())
	leaf.Dependencies = []string{"A", "A:build", "root", "does-not-exist"}
	root := NewGroup("root", NewGroup("A", leaf))

	summary := New(root, Options{Bail: true}).Run(context.Background())

	assert.True(t, summary.OK())
}

func TestRootHooksRunAroundPackages(t *testing.T) {
	pre := NewLeaf("prebuild", succeed())
	pre.Exclusive = true
	post := NewLeaf("postbuild", succeed())
	post.Exclusive = true
	post.Dependencies = []string{"A", "B"}

	root, _, _ := packageTree(succeed(), succeed())
	for _, g := range root.Children {
		g.Dependencies = []string{"prebuild"}
	}
	root.Children = append([]*Task{pre}, append(root.Children, post)...)
	rec := &recorder{}

	summary := New(root, Options{Concurrency: 4, Bail: true, Observer: rec}).Run(context.Background())

	require.True(t, summary.OK())
	events := rec.leafEvents()
	preDone := indexOf(events, "prebuild:success")
	postStart := indexOf(events, "postbuild:running")
	for _, name := range []string{"A:build", "B:build"} {
		assert.Less(t, preDone, indexOf(events, name+":running"))
		assert.Less(t, indexOf(events, name+":success"), postStart)
	}
}

func TestPanicIsLiteralFailure(t *testing.T) {
	leaf := NewLeaf("boom", func(context.Context) (*exec.Result, error) {
		panic("kaboom")
	})

	summary := New(NewGroup("root", leaf), Options{}).Run(context.Background())

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, ReasonError, leaf.Reason())
	assert.Contains(t, leaf.Err().Error(), "kaboom")
}

func TestActionErrorIsFailure(t *testing.T) {
	leaf := NewLeaf("err", func(context.Context) (*exec.Result, error) {
		return nil, errors.New("could not start")
	})

	summary := New(NewGroup("root", leaf), Options{}).Run(context.Background())

	assert.Equal(t, 1, summary.Failed)
	assert.EqualError(t, leaf.Err(), "could not start")
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	blocker := NewLeaf("A:build", func(ctx context.Context) (*exec.Result, error) {
		close(started)
		<-ctx.Done()
		return &exec.Result{ExitCode: 1}, ctx.Err()
	})
	var laterCalls atomic.Int32
	later := NewLeaf("B:build", counted(&laterCalls, succeed()))
	later.Dependencies = []string{"A"}
	root := NewGroup("root", NewGroup("A", blocker), NewGroup("B", later))

	go func() {
		<-started
		cancel()
	}()

	summary := New(root, Options{Bail: true}).Run(ctx)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, int32(0), laterCalls.Load())
	assert.Equal(t, ReasonCancelled, later.Reason())
	assert.Error(t, summary.Err())
	assertAllTerminal(t, root)
}

func TestRerunIsIdempotent(t *testing.T) {
	root, aLeaf, bLeaf := packageTree(failWith(1), succeed(), "A")

	first := New(root, Options{Bail: true}).Run(context.Background())
	firstStates := []Status{aLeaf.Status(), bLeaf.Status()}
	firstPrint := Fingerprint(root)

	second := New(root, Options{Bail: true}).Run(context.Background())

	assert.Equal(t, firstStates, []Status{aLeaf.Status(), bLeaf.Status()})
	assert.Equal(t, first.Failed, second.Failed)
	assert.Equal(t, first.DependencyFailed, second.DependencyFailed)
	assert.Equal(t, firstPrint, Fingerprint(root))
}

func TestFingerprint(t *testing.T) {
	build := func(cmd string) *Task {
		leaf := NewLeaf("a:build", succeed())
		leaf.Meta.Command = cmd
		return NewGroup("root", NewGroup("a", leaf))
	}

	assert.Equal(t, Fingerprint(build("tsc")), Fingerprint(build("tsc")))
	assert.NotEqual(t, Fingerprint(build("tsc")), Fingerprint(build("tsc -b")))
	assert.Len(t, Fingerprint(build("tsc")), 16)
}

func TestPlanReportsLeaves(t *testing.T) {
	root, _, _ := packageTree(succeed(), succeed(), "A")
	rec := &recorder{}

	New(root, Options{Concurrency: 2, Observer: rec}).Run(context.Background())

	require.Len(t, rec.plan.Leaves, 2)
	assert.Equal(t, "A:build", rec.plan.Leaves[0].Name)
	assert.Equal(t, "A", rec.plan.Leaves[0].Parent)
	assert.Equal(t, 2, rec.plan.Concurrency)
	assert.NotEmpty(t, rec.plan.Fingerprint)
}
