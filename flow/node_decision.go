package flow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/scriptlet"
	"github.com/BaSui01/flowgrid/types"
)

// NodeTypeDecision routes its input onto the true or false output port by
// evaluating a configured condition expression against the input value.
const NodeTypeDecision = "decision"

// DecisionExecutor evaluates `condition` with the single input value bound
// as `value`. Exactly one of the true/false/error ports fires per execution.
type DecisionExecutor struct {
	eval   *scriptlet.Evaluator
	logger *zap.Logger
}

// NewDecisionExecutor creates the decision node executor.
func NewDecisionExecutor(eval *scriptlet.Evaluator, logger *zap.Logger) *DecisionExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionExecutor{
		eval:   eval,
		logger: logger.With(zap.String("component", "decision_node")),
	}
}

// Definition implements Executor.
func (e *DecisionExecutor) Definition() NodeDefinition {
	return NodeDefinition{
		Type:    NodeTypeDecision,
		Label:   "Decision",
		Inputs:  []PortSpec{{Name: PortMain, Required: true}},
		Outputs: []string{PortTrue, PortFalse, PortError},
	}
}

// ValidateConfig rejects an empty or unparseable condition at configuration
// time, before any execution.
func (e *DecisionExecutor) ValidateConfig(config map[string]any) error {
	condition := configString(config, "condition")
	if condition == "" {
		return types.NewError(types.ErrConfiguration, "decision node requires a condition")
	}
	return e.eval.CheckSyntax(scriptlet.WrapExpression(condition))
}

// Execute implements Executor. An evaluation error emits on the error port
// with the exception message; it never fires true or false alongside.
func (e *DecisionExecutor) Execute(ctx context.Context, config map[string]any, inputs map[string]*Envelope) (*Envelope, error) {
	start := time.Now()
	condition := configString(config, "condition")
	if condition == "" {
		return NewErrorEnvelope(types.NewError(types.ErrConfiguration, "decision node requires a condition"), start), nil
	}

	in := inputs[PortMain]
	result, err := e.eval.Eval(ctx, scriptlet.WrapExpression(condition), map[string]any{
		"value": in.First(),
	})
	if err != nil {
		e.logger.Debug("condition evaluation failed", zap.Error(err))
		return NewErrorEnvelope(err, start), nil
	}

	port := PortFalse
	if truthy(result) {
		port = PortTrue
	}

	env := NewItemsEnvelope(in.Items, start, time.Now())
	env.Meta.OutputPort = port
	return env, nil
}

// truthy follows the scriptlet language's semantics: only nil and false are
// falsy.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		return true
	}
}
