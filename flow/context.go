package flow

import "context"

// RunInfo identifies the run and node an executor is serving. The scheduler
// sets it before each execution so executors that call out (sub-workflow
// triggers) can attribute their requests.
type RunInfo struct {
	RunID      string
	WorkflowID string
	NodeID     string
}

type runInfoKey struct{}

// WithRunInfo stores run identity in the context.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFromContext retrieves the run identity; the zero value when absent.
func RunInfoFromContext(ctx context.Context) RunInfo {
	if ctx == nil {
		return RunInfo{}
	}
	if info, ok := ctx.Value(runInfoKey{}).(RunInfo); ok {
		return info
	}
	return RunInfo{}
}
