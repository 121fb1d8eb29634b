package flow

import (
	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/scriptlet"
)

// NewBuiltinRegistry wires the built-in node types: trigger, decision,
// function, transform, and sub-workflow. A nil delegate leaves the
// sub-workflow type unregistered, for embedders that run single workflows
// only.
func NewBuiltinRegistry(eval *scriptlet.Evaluator, delegate SubworkflowDelegate, logger *zap.Logger) *Registry {
	registry := NewRegistry()
	registry.MustRegister(NewTriggerExecutor())
	registry.MustRegister(NewDecisionExecutor(eval, logger))
	registry.MustRegister(NewFunctionExecutor(eval, logger))
	registry.MustRegister(NewTransformExecutor(eval, logger))
	if delegate != nil {
		registry.MustRegister(NewSubworkflowExecutor(delegate, logger))
	}
	return registry
}
