package progress

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/felixgeelhaar/rman/internal/task"
)

// Record is one line of JSON output.
type Record struct {
	Time       time.Time `json:"time"`
	Event      string    `json:"event"`
	Task       string    `json:"task,omitempty"`
	Package    string    `json:"package,omitempty"`
	Step       string    `json:"step,omitempty"`
	Cmd        string    `json:"cmd,omitempty"`
	Cwd        string    `json:"cwd,omitempty"`
	Status     string    `json:"status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	DurationMS *int64    `json:"duration_ms,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Stderr     string    `json:"stderr,omitempty"`
	Message    string    `json:"message,omitempty"`

	// Plan and summary records only.
	Fingerprint      string `json:"fingerprint,omitempty"`
	Concurrency      int    `json:"concurrency,omitempty"`
	Total            *int   `json:"total,omitempty"`
	Succeeded        *int   `json:"succeeded,omitempty"`
	Failed           *int   `json:"failed,omitempty"`
	DependencyFailed *int   `json:"dependency_failed,omitempty"`
	Skipped          *int   `json:"skipped,omitempty"`
}

// Record event names.
const (
	EventPlan    = "plan"
	EventTask    = "task"
	EventSummary = "summary"
)

// JSONReporter writes one JSON object per leaf transition, framed by a plan
// and a summary record.
type JSONReporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONReporter creates a reporter writing to w.
func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{enc: json.NewEncoder(w)}
}

func (r *JSONReporter) Start(plan task.Plan) {
	total := len(plan.Leaves)
	r.write(Record{
		Time:        plan.Started,
		Event:       EventPlan,
		Task:        plan.Root.Name,
		Fingerprint: plan.Fingerprint,
		Concurrency: plan.Concurrency,
		Total:       &total,
	})
}

func (r *JSONReporter) TaskChanged(ev task.Event) {
	if !ev.Task.Leaf {
		return
	}

	rec := Record{
		Time:    ev.Time,
		Event:   EventTask,
		Task:    ev.Task.Name,
		Package: ev.Task.Meta.Package,
		Step:    ev.Task.Meta.Step,
		Cmd:     ev.Task.Meta.Command,
		Cwd:     ev.Task.Meta.Dir,
		Status:  ev.To.String(),
		Reason:  string(ev.Reason),
	}
	if ev.To.Terminal() {
		ms := ev.Duration.Milliseconds()
		rec.DurationMS = &ms
	}
	if ev.Result != nil && ev.To.Terminal() {
		code := ev.Result.ExitCode
		rec.ExitCode = &code
		if ev.To == task.StatusFailed {
			rec.Stderr = ev.Result.Stderr
		}
	}
	if ev.Err != nil {
		rec.Message = ev.Err.Error()
	}
	r.write(rec)
}

func (r *JSONReporter) Finish(s task.Summary) {
	ms := s.Duration.Milliseconds()
	rec := Record{
		Time:             time.Now(),
		Event:            EventSummary,
		DurationMS:       &ms,
		Total:            &s.Total,
		Succeeded:        &s.Succeeded,
		Failed:           &s.Failed,
		DependencyFailed: &s.DependencyFailed,
		Skipped:          &s.Skipped,
	}
	if err := s.Err(); err != nil {
		rec.Message = err.Error()
	}
	r.write(rec)
}

func (r *JSONReporter) write(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(rec)
}
