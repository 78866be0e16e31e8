package task

import (
	"time"

	"github.com/felixgeelhaar/rman/internal/exec"
)

// Info identifies a task in events without exposing its mutable state.
type Info struct {
	Name      string
	Parent    string
	Meta      Meta
	Leaf      bool
	Exclusive bool
}

// Event is one status transition.
type Event struct {
	Task     Info
	From     Status
	To       Status
	Reason   Reason
	Err      error
	Result   *exec.Result
	Duration time.Duration
	Time     time.Time
}

// Plan describes a run before it starts.
type Plan struct {
	Root        Info
	Leaves      []Info
	Concurrency int
	Fingerprint string
	Started     time.Time
}

// Observer receives scheduler events. Calls come from the dispatch loop
// and must return quickly; wrap slow observers asynchronously.
type Observer interface {
	Start(plan Plan)
	TaskChanged(ev Event)
	Finish(summary Summary)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Start(Plan) {}
func (NopObserver) TaskChanged(Event) {}
func (NopObserver) Finish(Summary) {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) Start(plan Plan) {
	for _, obs := range o {
		obs.Start(plan)
	}
}

func (o Observers) TaskChanged(ev Event) {
	for _, obs := range o {
		obs.TaskChanged(ev)
	}
}

func (o Observers) Finish(summary Summary) {
	for _, obs := range o {
		obs.Finish(summary)
	}
}
