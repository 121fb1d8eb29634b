package flow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/scriptlet"
	"github.com/BaSui01/flowgrid/types"
)

// NodeTypeTransform applies an ordered pipeline of named expressions to its
// input.
const NodeTypeTransform = "transform"

// Transformation is one step of a transform node's pipeline.
type Transformation struct {
	Name       string
	Expression string
	Enabled    bool
}

// TransformExecutor applies enabled transformations in list order, each
// receiving the previous one's output bound as `data`. A failing
// transformation short-circuits the remainder and names itself in the error.
type TransformExecutor struct {
	eval   *scriptlet.Evaluator
	logger *zap.Logger
}

// NewTransformExecutor creates the transform node executor.
func NewTransformExecutor(eval *scriptlet.Evaluator, logger *zap.Logger) *TransformExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransformExecutor{
		eval:   eval,
		logger: logger.With(zap.String("component", "transform_node")),
	}
}

// Definition implements Executor.
func (e *TransformExecutor) Definition() NodeDefinition {
	return NodeDefinition{
		Type:    NodeTypeTransform,
		Label:   "Data Transform",
		Inputs:  []PortSpec{{Name: PortMain, Required: true}},
		Outputs: []string{PortMain, PortError},
	}
}

// ValidateConfig checks the pipeline shape and each enabled expression's
// syntax.
func (e *TransformExecutor) ValidateConfig(config map[string]any) error {
	steps, err := decodeTransformations(config)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if !step.Enabled {
			continue
		}
		if err := e.eval.CheckSyntax(step.Expression); err != nil {
			return types.NewErrorf(types.ErrConfiguration, "transformation %q: invalid expression", step.Name).WithCause(err)
		}
	}
	return nil
}

// Execute implements Executor.
func (e *TransformExecutor) Execute(ctx context.Context, config map[string]any, inputs map[string]*Envelope) (*Envelope, error) {
	start := time.Now()
	steps, err := decodeTransformations(config)
	if err != nil {
		return NewErrorEnvelope(err, start), nil
	}

	data := inputs[PortMain].First()
	for _, step := range steps {
		if !step.Enabled {
			continue
		}
		result, err := e.eval.Eval(ctx, step.Expression, map[string]any{"data": data})
		if err != nil {
			e.logger.Debug("transformation failed",
				zap.String("transformation", step.Name),
				zap.Error(err),
			)
			return NewErrorEnvelope(
				types.NewErrorf(types.ErrExecution, "transformation %q failed", step.Name).WithCause(err),
				start,
			), nil
		}
		data = result
	}

	return NewEnvelope(data, start, time.Now()), nil
}

// decodeTransformations reads the `transformations` list out of decoded
// JSON/YAML config.
func decodeTransformations(config map[string]any) ([]Transformation, error) {
	raw, ok := config["transformations"]
	if !ok {
		return nil, types.NewError(types.ErrConfiguration, "transform node requires transformations")
	}

	list, ok := raw.([]any)
	if !ok {
		if typed, isTyped := raw.([]Transformation); isTyped {
			return typed, nil
		}
		return nil, types.NewError(types.ErrConfiguration, "transformations must be a list")
	}

	steps := make([]Transformation, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, types.NewErrorf(types.ErrConfiguration, "transformation %d has invalid shape", i)
		}
		step := Transformation{
			Name:       configString(m, "name"),
			Expression: configString(m, "expression"),
			Enabled:    configBool(m, "enabled"),
		}
		if step.Name == "" {
			step.Name = fmt.Sprintf("#%d", i+1)
		}
		if step.Enabled && step.Expression == "" {
			return nil, types.NewErrorf(types.ErrConfiguration, "transformation %q has no expression", step.Name)
		}
		steps = append(steps, step)
	}
	return steps, nil
}
