package flow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/types"
)

// NodeTypeSubworkflow triggers another workflow and waits for its result.
const NodeTypeSubworkflow = "subworkflow"

// defaultSubflowTimeout bounds delegate calls that configure no timeoutMs.
const defaultSubflowTimeout = 60 * time.Second

// TriggerMetadata attributes a nested trigger request to its origin.
type TriggerMetadata struct {
	Source           string `json:"source"`
	SourceNodeID     string `json:"sourceNodeId"`
	ParentWorkflowID string `json:"parentWorkflowId"`
}

// SubworkflowDelegate is the external workflow-execution entry point the
// sub-workflow node hands off to. api.Client implements it over the trigger
// HTTP boundary; tests substitute fakes.
type SubworkflowDelegate interface {
	Trigger(ctx context.Context, workflowID string, input any, stack CallStack, meta TriggerMetadata) (any, error)
}

// fallbackInputFields are searched in order when the configured inputField
// is absent from the payload.
var fallbackInputFields = []string{"text", "content", "prompt", "message", "value", "data"}

// SubworkflowExecutor implements the "trigger another workflow" node. It
// maintains the workflow call stack across nested invocations: a workflow
// already on the stack is never invoked again, which is the core safety
// invariant against self-triggering cycles.
type SubworkflowExecutor struct {
	delegate SubworkflowDelegate
	logger   *zap.Logger
}

// NewSubworkflowExecutor creates the sub-workflow trigger executor.
func NewSubworkflowExecutor(delegate SubworkflowDelegate, logger *zap.Logger) *SubworkflowExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubworkflowExecutor{
		delegate: delegate,
		logger:   logger.With(zap.String("component", "subworkflow_node")),
	}
}

// Definition implements Executor.
func (e *SubworkflowExecutor) Definition() NodeDefinition {
	return NodeDefinition{
		Type:    NodeTypeSubworkflow,
		Label:   "Sub-workflow",
		Inputs:  []PortSpec{{Name: PortMain, Required: true}},
		Outputs: []string{PortMain, PortError},
		Defaults: map[string]any{
			"inputField": "json",
		},
	}
}

// ValidateConfig rejects a missing workflowId at configuration time.
func (e *SubworkflowExecutor) ValidateConfig(config map[string]any) error {
	if configString(config, "workflowId") == "" {
		return types.NewError(types.ErrConfiguration, "subworkflow node requires workflowId")
	}
	return nil
}

// Execute implements Executor.
func (e *SubworkflowExecutor) Execute(ctx context.Context, config map[string]any, inputs map[string]*Envelope) (*Envelope, error) {
	start := time.Now()

	workflowID := configString(config, "workflowId")
	if workflowID == "" {
		return NewErrorEnvelope(types.NewError(types.ErrConfiguration, "subworkflow node requires workflowId"), start), nil
	}

	stack := CallStackFromContext(ctx)
	if stack.Contains(workflowID) {
		err := types.NewErrorf(types.ErrCircularDep,
			"circular workflow invocation: %s", stack.Describe(workflowID))
		e.logger.Warn("circular sub-workflow invocation rejected",
			zap.String("workflow_id", workflowID),
			zap.Strings("call_stack", stack),
		)
		return NewErrorEnvelope(err, start), nil
	}

	input := extractInput(inputs[PortMain], configString(config, "inputField"))
	extended := stack.Push(workflowID)
	info := RunInfoFromContext(ctx)
	meta := TriggerMetadata{
		Source:           "subworkflow_node",
		SourceNodeID:     info.NodeID,
		ParentWorkflowID: info.WorkflowID,
	}
	timeout := configDuration(config, "timeoutMs", defaultSubflowTimeout)

	result, err := WithTimeout(ctx, timeout, func(ctx context.Context) (any, error) {
		return e.delegate.Trigger(WithCallStack(ctx, extended), workflowID, input, extended, meta)
	})
	elapsed := time.Since(start)

	switch {
	case types.IsCode(err, types.ErrTimeout):
		return NewErrorEnvelope(
			types.NewErrorf(types.ErrTimeout, "sub-workflow %s timed out after %s", workflowID, timeout),
			start,
		), nil
	case err != nil:
		return NewErrorEnvelope(
			types.NewErrorf(types.ErrExecution, "sub-workflow %s failed", workflowID).WithCause(err),
			start,
		), nil
	}

	return NewEnvelope(map[string]any{
		"result":          result,
		"executionTimeMs": elapsed.Milliseconds(),
	}, start, time.Now()), nil
}

// extractInput applies the inputField policy: "json" passes the whole
// payload; a named field is looked up in the payload map, falling back
// through common field names, then the whole payload.
func extractInput(env *Envelope, field string) any {
	payload := env.First()
	if field == "" || field == "json" {
		return payload
	}

	m, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	if value, ok := m[field]; ok {
		return value
	}
	for _, fallback := range fallbackInputFields {
		if value, ok := m[fallback]; ok {
			return value
		}
	}
	return payload
}
