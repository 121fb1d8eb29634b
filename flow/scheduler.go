package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/flowgrid/types"
)

// Observer receives execution measurements. internal/metrics provides the
// Prometheus implementation; a nil observer disables collection.
type Observer interface {
	NodeExecuted(nodeType string, state NodeState, d time.Duration)
	RunFinished(status RunStatus, d time.Duration, executedNodes int)
}

// RunOptions carries per-run observability callbacks and the inherited
// sub-workflow call stack. Callbacks are invoked synchronously and must not
// block the run.
type RunOptions struct {
	// OnNodeStateChange fires before and after each node execution.
	OnNodeStateChange func(nodeID string, state NodeState)
	// OnComplete fires exactly once with the final trace.
	OnComplete func(*RunTrace)
	// CallStack is the workflow call stack inherited from a parent run.
	CallStack CallStack
	// RunID overrides the generated run identifier so callers can correlate
	// state-change events with the returned trace.
	RunID string
}

// Scheduler walks a workflow graph, invokes each node's executor with the
// correct upstream data, routes output along the selected port's edges, and
// assembles the run trace. One node completion unblocks its dependents; the
// default mode executes deterministically, one node at a time.
type Scheduler struct {
	registry *Registry
	router   *Router
	logger   *zap.Logger
	observer Observer
	tracer   trace.Tracer

	defaultNodeTimeout time.Duration
	parallel           bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithObserver attaches a metrics observer.
func WithObserver(obs Observer) SchedulerOption {
	return func(s *Scheduler) { s.observer = obs }
}

// WithTracer attaches an OpenTelemetry tracer; one span is opened per run
// and per node execution.
func WithTracer(tracer trace.Tracer) SchedulerOption {
	return func(s *Scheduler) { s.tracer = tracer }
}

// WithDefaultNodeTimeout bounds node executions that do not configure their
// own timeoutMs. Zero means no default deadline.
func WithDefaultNodeTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.defaultNodeTimeout = d }
}

// WithParallelBranches executes mutually independent ready nodes
// concurrently. Per-node ordering relative to its own dependencies is
// preserved; routing stays deterministic.
func WithParallelBranches() SchedulerOption {
	return func(s *Scheduler) { s.parallel = true }
}

// NewScheduler creates a scheduler over the given executor registry.
func NewScheduler(registry *Registry, logger *zap.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		registry: registry,
		router:   NewRouter(),
		logger:   logger.With(zap.String("component", "scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// runState is the per-run bookkeeping. Edges move from undecided to either
// fired (carrying an envelope) or dead (branch not taken); a node becomes
// decidable once every incoming edge is decided.
type runState struct {
	graph    *Graph
	entryID  string
	trace    *RunTrace
	opts     RunOptions
	incoming map[string][]int
	outgoing map[string][]int
	decided  []bool
	edgeEnv  []*Envelope // nil for dead edges
	pending  map[string]int
	queue    []string

	cbMu             sync.Mutex
	unconsumed       bool
	unconsumedIsTime bool
}

// nodeOutcome is the result of one node visit before routing.
type nodeOutcome struct {
	nodeID  string
	def     NodeDefinition
	env     *Envelope
	skipped bool
	starved bool
	fatal   error
}

// Run executes the graph with the given initial input. Graph validation
// failures and static cycles abort before any node executes and are the only
// error returns besides internal executor faults. ctx cancellation stops the
// run after the in-flight node settles.
func (s *Scheduler) Run(ctx context.Context, graph *Graph, initial *Envelope, opts RunOptions) (*RunTrace, error) {
	if graph == nil {
		return nil, types.NewError(types.ErrValidation, "graph cannot be nil")
	}
	if err := graph.Validate(s.registry); err != nil {
		return nil, err
	}
	entry, err := graph.EntryNode()
	if err != nil {
		return nil, err
	}

	runTrace := NewRunTrace(graph.ID)
	if opts.RunID != "" {
		runTrace.RunID = opts.RunID
	}

	st := &runState{
		graph:    graph,
		entryID:  entry.ID,
		trace:    runTrace,
		opts:     opts,
		incoming: make(map[string][]int),
		outgoing: make(map[string][]int),
		decided:  make([]bool, len(graph.Edges)),
		edgeEnv:  make([]*Envelope, len(graph.Edges)),
		pending:  make(map[string]int, len(graph.Nodes)),
	}
	for i, edge := range graph.Edges {
		st.incoming[edge.Target] = append(st.incoming[edge.Target], i)
		st.outgoing[edge.Source] = append(st.outgoing[edge.Source], i)
	}
	for _, node := range graph.Nodes {
		st.pending[node.ID] = len(st.incoming[node.ID])
	}
	st.queue = append(st.queue, entry.ID)

	ctx = WithCallStack(ctx, opts.CallStack)

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "flow.run",
			trace.WithAttributes(
				attribute.String("workflow.id", graph.ID),
				attribute.String("run.id", st.trace.RunID),
			))
		defer span.End()
	}

	s.logger.Info("starting run",
		zap.String("run_id", st.trace.RunID),
		zap.String("workflow_id", graph.ID),
		zap.String("entry", entry.ID),
		zap.Int("nodes", len(graph.Nodes)),
	)

	fatal := s.loop(ctx, st, initial)

	status := RunStatusCompleted
	switch {
	case fatal != nil:
		status = RunStatusError
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = RunStatusTimeout
	case ctx.Err() != nil:
		status = RunStatusError
	case st.unconsumed && st.unconsumedIsTime:
		status = RunStatusTimeout
	case st.unconsumed:
		status = RunStatusError
	}
	st.trace.finish(status)

	if s.observer != nil {
		s.observer.RunFinished(status, st.trace.EndTime.Sub(st.trace.StartTime), len(st.trace.ExecutedNodes()))
	}
	s.logger.Info("run finished",
		zap.String("run_id", st.trace.RunID),
		zap.String("status", string(status)),
		zap.Int("nodes_executed", len(st.trace.ExecutedNodes())),
	)

	if opts.OnComplete != nil {
		opts.OnComplete(st.trace)
	}
	return st.trace, fatal
}

// loop drains the ready queue. Sequential mode visits one node per step;
// parallel mode takes the whole ready set as a wave, executes it with an
// errgroup, then routes results in wave order so edge decisions stay
// deterministic.
func (s *Scheduler) loop(ctx context.Context, st *runState, initial *Envelope) error {
	for len(st.queue) > 0 {
		if ctx.Err() != nil {
			s.logger.Warn("run interrupted", zap.String("run_id", st.trace.RunID), zap.Error(ctx.Err()))
			return nil
		}

		var wave []string
		if s.parallel {
			wave, st.queue = st.queue, nil
		} else {
			wave, st.queue = st.queue[:1:1], st.queue[1:]
		}

		outcomes := make([]*nodeOutcome, len(wave))
		if s.parallel && len(wave) > 1 {
			g, gctx := errgroup.WithContext(ctx)
			for i, nodeID := range wave {
				g.Go(func() error {
					outcomes[i] = s.visit(gctx, st, nodeID, initial)
					return outcomes[i].fatal
				})
			}
			// Collect every outcome; the first fatal is surfaced below.
			_ = g.Wait()
		} else {
			for i, nodeID := range wave {
				outcomes[i] = s.visit(ctx, st, nodeID, initial)
			}
		}

		for _, outcome := range outcomes {
			if outcome == nil {
				continue
			}
			if outcome.fatal != nil {
				st.notify(outcome.nodeID, NodeStateFailed)
				return outcome.fatal
			}
			s.route(st, outcome)
		}
	}
	return nil
}

// visit gathers a node's inputs and either executes it or marks it skipped.
// All incoming edges are already decided when a node is dequeued.
func (s *Scheduler) visit(ctx context.Context, st *runState, nodeID string, initial *Envelope) *nodeOutcome {
	node, _ := st.graph.Node(nodeID)
	def, _ := s.registry.Definition(node.Type)
	outcome := &nodeOutcome{nodeID: nodeID, def: def}

	inputs, firedCount := s.gatherInputs(st, nodeID, initial)

	if nodeID != st.entryID {
		if firedCount == 0 {
			// All upstream branches were not taken.
			outcome.skipped = true
			return outcome
		}
		for _, port := range def.Inputs {
			if port.Required && inputs[port.Name] == nil && len(st.incoming[nodeID]) > 0 {
				// A required port starved while another fired: the node can
				// never become ready.
				outcome.skipped = true
				outcome.starved = true
				return outcome
			}
		}
	}

	exec, ok := s.registry.Executor(node.Type)
	if !ok {
		outcome.fatal = types.NewErrorf(types.ErrInternalError, "no executor for type %q", node.Type).WithNodeID(nodeID)
		return outcome
	}

	st.notify(nodeID, NodeStateRunning)
	cfg := effectiveConfig(def, node.Config)
	timeout := configDuration(cfg, "timeoutMs", s.defaultNodeTimeout)
	ctx = WithRunInfo(ctx, RunInfo{
		RunID:      st.trace.RunID,
		WorkflowID: st.graph.ID,
		NodeID:     nodeID,
	})

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "flow.node",
			trace.WithAttributes(
				attribute.String("node.id", nodeID),
				attribute.String("node.type", node.Type),
			))
		defer span.End()
	}

	start := time.Now()
	env, err := WithTimeout(ctx, timeout, func(ctx context.Context) (*Envelope, error) {
		return exec.Execute(ctx, cfg, inputs)
	})
	elapsed := time.Since(start)

	switch {
	case err != nil && types.IsRecoverable(err):
		// Recovered at the node boundary: the node is still "executed".
		env = NewErrorEnvelope(err, start)
	case err != nil:
		s.logger.Error("executor internal fault",
			zap.String("run_id", st.trace.RunID),
			zap.String("node_id", nodeID),
			zap.Error(err),
		)
		outcome.fatal = types.NewErrorf(types.ErrInternalError, "node %s executor fault", nodeID).WithCause(err).WithNodeID(nodeID)
		return outcome
	case env == nil:
		outcome.fatal = types.NewErrorf(types.ErrInternalError, "node %s executor returned nil envelope", nodeID).WithNodeID(nodeID)
		return outcome
	}

	s.logger.Debug("node executed",
		zap.String("run_id", st.trace.RunID),
		zap.String("node_id", nodeID),
		zap.String("node_type", node.Type),
		zap.String("status", string(env.Meta.Status)),
		zap.Duration("duration", elapsed),
	)
	if s.observer != nil {
		state := NodeStateCompleted
		if env.IsError() {
			state = NodeStateFailed
		}
		s.observer.NodeExecuted(node.Type, state, elapsed)
	}

	outcome.env = env
	return outcome
}

// gatherInputs merges fired upstream envelopes per input port in
// edge-declaration order. The entry node consumes the initial input on its
// main port.
func (s *Scheduler) gatherInputs(st *runState, nodeID string, initial *Envelope) (map[string]*Envelope, int) {
	inputs := make(map[string]*Envelope)
	fired := 0

	if nodeID == st.entryID {
		if initial != nil {
			inputs[PortMain] = initial
		}
		return inputs, fired
	}

	byPort := make(map[string][]*Envelope)
	var portOrder []string
	for _, edgeIdx := range st.incoming[nodeID] {
		env := st.edgeEnv[edgeIdx]
		if env == nil {
			continue
		}
		fired++
		port := st.graph.Edges[edgeIdx].TargetPort()
		if _, seen := byPort[port]; !seen {
			portOrder = append(portOrder, port)
		}
		byPort[port] = append(byPort[port], env)
	}
	for _, port := range portOrder {
		inputs[port] = merge(byPort[port])
	}
	return inputs, fired
}

// route records the outcome in the trace, fires the selected port's edges,
// kills the rest, and enqueues targets whose incoming edges are now all
// decided.
func (s *Scheduler) route(st *runState, outcome *nodeOutcome) {
	nodeID := outcome.nodeID

	if outcome.skipped {
		if outcome.starved {
			s.logger.Debug("node starved, skipping",
				zap.String("run_id", st.trace.RunID),
				zap.String("node_id", nodeID),
				zap.String("reason", string(types.ErrFanInStarved)),
			)
		}
		st.notify(nodeID, NodeStateSkipped)
		if s.observer != nil {
			node, _ := st.graph.Node(nodeID)
			s.observer.NodeExecuted(node.Type, NodeStateSkipped, 0)
		}
		for _, edgeIdx := range st.outgoing[nodeID] {
			s.decide(st, edgeIdx, nil)
		}
		return
	}

	env := outcome.env
	st.trace.Record(nodeID, env)
	if env.IsError() {
		st.notify(nodeID, NodeStateFailed)
	} else {
		st.notify(nodeID, NodeStateCompleted)
	}

	selected := s.router.Select(outcome.def, env)
	consumed := false
	for _, edgeIdx := range st.outgoing[nodeID] {
		if st.graph.Edges[edgeIdx].SourcePort() == selected {
			s.decide(st, edgeIdx, env)
			consumed = true
		} else {
			s.decide(st, edgeIdx, nil)
		}
	}

	if env.IsError() && !consumed {
		st.unconsumed = true
		if types.IsCode(errFromEnvelope(env), types.ErrTimeout) {
			st.unconsumedIsTime = true
		}
	}
}

// decide settles one edge; env nil means the edge is dead. When the target's
// last pending edge settles, the target joins the ready queue.
func (s *Scheduler) decide(st *runState, edgeIdx int, env *Envelope) {
	if st.decided[edgeIdx] {
		return
	}
	st.decided[edgeIdx] = true
	st.edgeEnv[edgeIdx] = env

	target := st.graph.Edges[edgeIdx].Target
	st.pending[target]--
	if st.pending[target] == 0 {
		st.queue = append(st.queue, target)
	}
}

// notify records the node state and invokes the state-change callback under
// a lock so parallel branches deliver callbacks one at a time.
func (st *runState) notify(nodeID string, state NodeState) {
	st.cbMu.Lock()
	defer st.cbMu.Unlock()
	st.trace.SetState(nodeID, state)
	if st.opts.OnNodeStateChange != nil {
		st.opts.OnNodeStateChange(nodeID, state)
	}
}

// errFromEnvelope reconstructs a coded error from an error envelope's
// message for status classification.
func errFromEnvelope(env *Envelope) error {
	if env == nil || !env.IsError() {
		return nil
	}
	msg := env.Meta.ErrorMessage
	if len(msg) > 1 && msg[0] == '[' {
		for i := 1; i < len(msg); i++ {
			if msg[i] == ']' {
				return types.NewError(types.ErrorCode(msg[1:i]), msg[i+1:])
			}
		}
	}
	return types.NewError(types.ErrExecution, msg)
}
