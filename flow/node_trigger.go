package flow

import (
	"context"
	"time"
)

// NodeTypeTrigger is the implicit entry node consuming the run's initial
// input and emitting it unchanged on its main port.
const NodeTypeTrigger = "trigger"

// TriggerExecutor starts a run by passing the initial input through.
type TriggerExecutor struct{}

// NewTriggerExecutor creates the entry node executor.
func NewTriggerExecutor() *TriggerExecutor {
	return &TriggerExecutor{}
}

// Definition implements Executor.
func (e *TriggerExecutor) Definition() NodeDefinition {
	return NodeDefinition{
		Type:    NodeTypeTrigger,
		Label:   "Trigger",
		Inputs:  []PortSpec{{Name: PortMain, Required: false}},
		Outputs: []string{PortMain},
	}
}

// Execute implements Executor.
func (e *TriggerExecutor) Execute(_ context.Context, _ map[string]any, inputs map[string]*Envelope) (*Envelope, error) {
	now := time.Now()
	if in, ok := inputs[PortMain]; ok && in != nil {
		return NewItemsEnvelope(in.Items, now, time.Now()), nil
	}
	return NewItemsEnvelope([]Item{{JSON: map[string]any{}}}, now, time.Now()), nil
}
