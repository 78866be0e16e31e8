package exec

import (
	"os/exec"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks running child processes so they can be killed when the
// parent is told to terminate.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	processes map[string]*exec.Cmd
	closed    bool
}

// NewRegistry creates an empty process registry.
func NewRegistry() *Registry {
	return &Registry{processes: make(map[string]*exec.Cmd)}
}

// Add tracks a started command and returns its registry ID.
// If the registry was already shut down the process is killed immediately.
func (r *Registry) Add(cmd *exec.Cmd) string {
	id := uuid.New().String()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = killProcess(cmd)
		return id
	}
	r.processes[id] = cmd
	r.mu.Unlock()

	return id
}

// Remove stops tracking the process with the given ID.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.processes, id)
	r.mu.Unlock()
}

// Len returns the number of tracked processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.processes)
}

// KillAll force-kills every tracked process group and refuses new ones.
// It returns the number of processes signalled.
func (r *Registry) KillAll() int {
	r.mu.Lock()
	r.closed = true
	procs := make([]*exec.Cmd, 0, len(r.processes))
	for id, cmd := range r.processes {
		procs = append(procs, cmd)
		delete(r.processes, id)
	}
	r.mu.Unlock()

	for _, cmd := range procs {
		_ = killProcess(cmd)
	}
	return len(procs)
}
