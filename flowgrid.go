// Package flowgrid provides a top-level convenience entry point for running
// workflow graphs with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/flowgrid"
//
//	engine, err := flowgrid.New()
//	engine, err := flowgrid.New(flowgrid.WithLogger(logger), flowgrid.WithNodeTimeout(10*time.Second))
//
//	trace, err := engine.Run(ctx, graph, input)
//
// This is a thin wrapper around [flow.NewScheduler] with the built-in
// executors pre-registered. Embedders needing custom node types or a
// sub-workflow delegate should wire [flow.Registry] directly.
package flowgrid

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/flow"
	"github.com/BaSui01/flowgrid/scriptlet"
)

// Engine executes workflow graphs with the built-in node set.
type Engine struct {
	scheduler *flow.Scheduler
	registry  *flow.Registry
}

type settings struct {
	logger      *zap.Logger
	delegate    flow.SubworkflowDelegate
	nodeTimeout time.Duration
	parallel    bool
}

// Option configures the engine created by [New].
type Option func(*settings)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithSubworkflowDelegate enables sub-workflow trigger nodes.
func WithSubworkflowDelegate(delegate flow.SubworkflowDelegate) Option {
	return func(s *settings) { s.delegate = delegate }
}

// WithNodeTimeout bounds node executions that configure no timeoutMs.
func WithNodeTimeout(d time.Duration) Option {
	return func(s *settings) { s.nodeTimeout = d }
}

// WithParallelBranches executes independent branches concurrently.
func WithParallelBranches() Option {
	return func(s *settings) { s.parallel = true }
}

// New creates an engine with the built-in executors registered.
func New(opts ...Option) (*Engine, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	registry := flow.NewBuiltinRegistry(scriptlet.New(s.logger), s.delegate, s.logger)

	schedOpts := []flow.SchedulerOption{}
	if s.nodeTimeout > 0 {
		schedOpts = append(schedOpts, flow.WithDefaultNodeTimeout(s.nodeTimeout))
	}
	if s.parallel {
		schedOpts = append(schedOpts, flow.WithParallelBranches())
	}

	return &Engine{
		scheduler: flow.NewScheduler(registry, s.logger, schedOpts...),
		registry:  registry,
	}, nil
}

// Run executes the graph with the given initial input and returns its trace.
func (e *Engine) Run(ctx context.Context, graph *flow.Graph, input any) (*flow.RunTrace, error) {
	now := time.Now()
	return e.scheduler.Run(ctx, graph, flow.NewEnvelope(input, now, now), flow.RunOptions{})
}

// Registry exposes the executor registry for custom node registration.
func (e *Engine) Registry() *flow.Registry {
	return e.registry
}
