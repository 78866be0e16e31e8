package progress

import (
	"sync"

	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/task"
)

// AsyncObserver delivers events to another observer from its own goroutine.
// The queue is unbounded so the scheduler never waits on a slow sink.
type AsyncObserver struct {
	inner task.Observer

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// Async starts delivering events to inner. Call Close once the run is
// over to flush the queue.
func Async(inner task.Observer) *AsyncObserver {
	a := &AsyncObserver{
		inner: inner,
		done:  make(chan struct{}),
	}
	a.cond = sync.NewCond(&a.mu)
	go a.loop()
	return a
}

func (a *AsyncObserver) Start(plan task.Plan) {
	a.push(func() { a.inner.Start(plan) })
}

func (a *AsyncObserver) TaskChanged(ev task.Event) {
	a.push(func() { a.inner.TaskChanged(ev) })
}

func (a *AsyncObserver) Finish(summary task.Summary) {
	a.push(func() { a.inner.Finish(summary) })
}

// TaskOutput forwards output lines when the wrapped observer shows them.
func (a *AsyncObserver) TaskOutput(t task.Info, stream exec.Stream, line string) {
	out, ok := a.inner.(OutputObserver)
	if !ok {
		return
	}
	a.push(func() { out.TaskOutput(t, stream, line) })
}

// Close waits until every queued event has been delivered. Events pushed
// after Close are dropped.
func (a *AsyncObserver) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		a.cond.Signal()
	}
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncObserver) push(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.queue = append(a.queue, fn)
	a.cond.Signal()
}

func (a *AsyncObserver) loop() {
	defer close(a.done)
	for {
		a.mu.Lock()
		for len(a.queue) == 0 && !a.closed {
			a.cond.Wait()
		}
		if len(a.queue) == 0 {
			a.mu.Unlock()
			return
		}
		batch := a.queue
		a.queue = nil
		a.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}
