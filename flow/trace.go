package flow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the overall outcome of one graph run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is in progress.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates every executed node succeeded or had its
	// error consumed by an error-handling path.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusError indicates at least one node error went unconsumed.
	RunStatusError RunStatus = "error"
	// RunStatusTimeout indicates the run was cut short by a deadline.
	RunStatusTimeout RunStatus = "timeout"
)

// NodeState is the per-node lifecycle reported through OnNodeStateChange.
type NodeState string

const (
	NodeStateRunning   NodeState = "running"
	NodeStateCompleted NodeState = "completed"
	NodeStateFailed    NodeState = "failed"
	NodeStateSkipped   NodeState = "skipped"
)

// RunTrace is the scheduler's accumulated record of a run: one envelope per
// executed node plus the overall status. Created at run start, returned to
// the caller, and discarded afterwards; the engine holds no state between
// runs.
type RunTrace struct {
	RunID      string    `json:"run_id"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	Status     RunStatus `json:"status"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`

	mu      sync.RWMutex
	results map[string]*Envelope
	states  map[string]NodeState
	order   []string
}

// NewRunTrace creates a trace for one run of the given workflow.
func NewRunTrace(workflowID string) *RunTrace {
	return &RunTrace{
		RunID:      uuid.NewString(),
		WorkflowID: workflowID,
		Status:     RunStatusRunning,
		StartTime:  time.Now(),
		results:    make(map[string]*Envelope),
		states:     make(map[string]NodeState),
	}
}

// Record stores the envelope produced by an executed node.
func (t *RunTrace) Record(nodeID string, env *Envelope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.results[nodeID]; !seen {
		t.order = append(t.order, nodeID)
	}
	t.results[nodeID] = env
}

// SetState records a node lifecycle transition.
func (t *RunTrace) SetState(nodeID string, state NodeState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[nodeID] = state
}

// Result returns the recorded envelope for a node.
func (t *RunTrace) Result(nodeID string) (*Envelope, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	env, ok := t.results[nodeID]
	return env, ok
}

// State returns the last recorded state for a node.
func (t *RunTrace) State(nodeID string) (NodeState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.states[nodeID]
	return state, ok
}

// ExecutedNodes returns the IDs of executed nodes in execution order.
func (t *RunTrace) ExecutedNodes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Results returns a copy of the nodeID -> envelope map.
func (t *RunTrace) Results() map[string]*Envelope {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*Envelope, len(t.results))
	for id, env := range t.results {
		out[id] = env
	}
	return out
}

// States returns a copy of the nodeID -> state map.
func (t *RunTrace) States() map[string]NodeState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]NodeState, len(t.states))
	for id, state := range t.states {
		out[id] = state
	}
	return out
}

// FinalOutput returns the envelope of the last executed node, which callers
// treat as the run's result value.
func (t *RunTrace) FinalOutput() *Envelope {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.order) == 0 {
		return nil
	}
	return t.results[t.order[len(t.order)-1]]
}

// finish seals the trace with the overall status.
func (t *RunTrace) finish(status RunStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = status
	t.EndTime = time.Now()
}
