package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/codemode/codemode/engine/core"
)

var ErrWorkflowNotFound = fmt.Errorf("workflow not found")

// Registry is an in-memory workflow index for the composition root.
// Durable persistence is a caller concern; the registry only gives the
// scheduler and webhook triggers something to resolve ids against.
type Registry struct {
	mu        sync.RWMutex
	workflows map[core.ID]*Workflow
}

func NewRegistry() *Registry {
	return &Registry{workflows: make(map[core.ID]*Workflow)}
}

func (r *Registry) Add(wf *Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.ID] = wf
}

func (r *Registry) Get(id core.ID) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return wf, nil
}

// Remove deletes the workflow. Callers must also unschedule and
// deregister any webhook; the registry does not cascade.
func (r *Registry) Remove(id core.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[id]; !ok {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	delete(r.workflows, id)
	return nil
}

func (r *Registry) List() []*Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		out = append(out, wf)
	}
	return out
}

// MarkExecuted stamps the last execution time.
func (r *Registry) MarkExecuted(id core.ID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wf, ok := r.workflows[id]; ok {
		wf.LastExecutionAt = &at
		wf.UpdatedAt = at
	}
}
