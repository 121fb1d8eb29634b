package flow

import (
	"context"
	"sync"

	"github.com/BaSui01/flowgrid/types"
)

// Executor is the contract every node type implements. Execute receives the
// node's effective configuration and the input envelopes keyed by port name.
//
// All expected failure paths (bad config, scriptlet errors, timeouts,
// circular sub-workflow calls) must be reported as a StatusError envelope.
// A non-nil error return means an internal fault and aborts the run.
// Executors must be idempotent given identical inputs.
type Executor interface {
	// Definition returns the static node-type metadata.
	Definition() NodeDefinition
	// Execute runs the node once all required inputs are available.
	Execute(ctx context.Context, config map[string]any, inputs map[string]*Envelope) (*Envelope, error)
}

// ConfigValidator is implemented by executors whose configuration can be
// checked before execution. Graph validation calls it per node so problems
// like an empty or unparseable decision condition surface at configuration
// time rather than at run time.
type ConfigValidator interface {
	ValidateConfig(config map[string]any) error
}

// Registry holds node executors keyed by type string. Registration happens
// at startup; lookups are safe for concurrent use during runs.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor under its definition's type. Re-registering a
// type is rejected: definitions are immutable after registration.
func (r *Registry) Register(exec Executor) error {
	def := exec.Definition()
	if def.Type == "" {
		return types.NewError(types.ErrValidation, "executor definition has empty type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[def.Type]; exists {
		return types.NewErrorf(types.ErrValidation, "node type %q already registered", def.Type)
	}
	r.executors[def.Type] = exec
	return nil
}

// MustRegister registers an executor and panics on conflict. Intended for
// wiring the built-in types at startup.
func (r *Registry) MustRegister(exec Executor) {
	if err := r.Register(exec); err != nil {
		panic(err)
	}
}

// Executor returns the executor registered for the given type.
func (r *Registry) Executor(nodeType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[nodeType]
	return exec, ok
}

// Definition returns the definition registered for the given type.
func (r *Registry) Definition(nodeType string) (NodeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[nodeType]
	if !ok {
		return NodeDefinition{}, false
	}
	return exec.Definition(), true
}

// Types returns all registered node type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	return out
}

// effectiveConfig overlays node config on the definition defaults.
func effectiveConfig(def NodeDefinition, config map[string]any) map[string]any {
	if len(def.Defaults) == 0 {
		return config
	}
	merged := make(map[string]any, len(def.Defaults)+len(config))
	for k, v := range def.Defaults {
		merged[k] = v
	}
	for k, v := range config {
		merged[k] = v
	}
	return merged
}
