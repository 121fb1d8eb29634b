package flow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/scriptlet"
	"github.com/BaSui01/flowgrid/types"
)

// NodeTypeFunction runs a user-supplied function body against its input.
const NodeTypeFunction = "function"

// Error handling modes for the function node.
const (
	// ErrorHandlingThrow aborts the node with an error envelope (default).
	ErrorHandlingThrow = "throw"
	// ErrorHandlingReturn wraps the error as a data value in the output.
	ErrorHandlingReturn = "return"
	// ErrorHandlingNull substitutes nil and continues.
	ErrorHandlingNull = "null"
)

// FunctionExecutor runs `code` with the primary input bound as `data` and
// the full input-port map bound as `inputs`. Results may be cached keyed by
// the (code, input) fingerprint when `cacheResults` is set.
type FunctionExecutor struct {
	eval   *scriptlet.Evaluator
	logger *zap.Logger
}

// NewFunctionExecutor creates the function node executor.
func NewFunctionExecutor(eval *scriptlet.Evaluator, logger *zap.Logger) *FunctionExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FunctionExecutor{
		eval:   eval,
		logger: logger.With(zap.String("component", "function_node")),
	}
}

// Definition implements Executor.
func (e *FunctionExecutor) Definition() NodeDefinition {
	return NodeDefinition{
		Type:   NodeTypeFunction,
		Label:  "Function",
		Inputs: []PortSpec{{Name: PortMain, Required: true}, {Name: "aux", Required: false}},
		Outputs: []string{
			PortMain,
			PortError,
		},
		Defaults: map[string]any{
			"errorHandling": ErrorHandlingThrow,
			"cacheResults":  false,
		},
	}
}

// ValidateConfig rejects an empty or unparseable function body.
func (e *FunctionExecutor) ValidateConfig(config map[string]any) error {
	code := configString(config, "code")
	if code == "" {
		return types.NewError(types.ErrConfiguration, "function node requires code")
	}
	return e.eval.CheckSyntax(code)
}

// Execute implements Executor.
func (e *FunctionExecutor) Execute(ctx context.Context, config map[string]any, inputs map[string]*Envelope) (*Envelope, error) {
	start := time.Now()
	code := configString(config, "code")
	if code == "" {
		return NewErrorEnvelope(types.NewError(types.ErrConfiguration, "function node requires code"), start), nil
	}

	bindings := map[string]any{
		"data":   inputs[PortMain].First(),
		"inputs": bindInputs(inputs),
	}

	timeout := configDuration(config, "timeout", 0)
	type evalResult struct {
		value  any
		cached bool
	}
	res, err := WithTimeout(ctx, timeout, func(ctx context.Context) (evalResult, error) {
		if configBool(config, "cacheResults") {
			value, cached, err := e.eval.EvalCached(ctx, code, bindings)
			return evalResult{value: value, cached: cached}, err
		}
		value, err := e.eval.Eval(ctx, code, bindings)
		return evalResult{value: value}, err
	})

	switch {
	case err == nil:
		env := NewEnvelope(res.value, start, time.Now())
		env.Meta.Cached = res.cached
		return env, nil

	case types.IsCode(err, types.ErrTimeout):
		// The output item is replaced with a standard timeout-error item;
		// the node itself is treated as failed.
		return NewErrorEnvelope(err, start), nil

	default:
		switch configString(config, "errorHandling") {
		case ErrorHandlingReturn:
			return NewEnvelope(map[string]any{"error": err.Error()}, start, time.Now()), nil
		case ErrorHandlingNull:
			return NewEnvelope(nil, start, time.Now()), nil
		default: // ErrorHandlingThrow
			e.logger.Debug("function scriptlet failed", zap.Error(err))
			return NewErrorEnvelope(err, start), nil
		}
	}
}

// bindInputs exposes each input port's item values to the scriptlet.
func bindInputs(inputs map[string]*Envelope) map[string]any {
	out := make(map[string]any, len(inputs))
	for port, env := range inputs {
		out[port] = env.Values()
	}
	return out
}
