package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/api"
	"github.com/BaSui01/flowgrid/api/handlers"
	"github.com/BaSui01/flowgrid/config"
	"github.com/BaSui01/flowgrid/flow"
	"github.com/BaSui01/flowgrid/internal/cache"
	"github.com/BaSui01/flowgrid/internal/metrics"
	"github.com/BaSui01/flowgrid/internal/server"
	"github.com/BaSui01/flowgrid/internal/telemetry"
	"github.com/BaSui01/flowgrid/internal/tracestore"
	"github.com/BaSui01/flowgrid/scriptlet"
	"github.com/BaSui01/flowgrid/types"
)

// pruneInterval 定期淘汰旧存档的周期
const pruneInterval = time.Hour

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 FlowGrid 的主服务器：装配执行引擎与 HTTP 边界
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	providers *telemetry.Providers

	httpManager  *server.Manager
	collector    *metrics.Collector
	cacheManager *cache.Manager
	traceStore   *tracestore.Store
	broker       *handlers.EventBroker
	runner       *workflowRunner

	pruneCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		providers: providers,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("flowgrid", s.logger)

	evaluator, err := s.buildEvaluator()
	if err != nil {
		return fmt.Errorf("failed to init evaluator: %w", err)
	}

	// 嵌套触发经由本机 HTTP 边界回环，与外部调用方走同一条路径
	delegate := api.NewClient(api.ClientConfig{
		BaseURL:   fmt.Sprintf("http://localhost:%d", s.cfg.Server.HTTPPort),
		RateLimit: s.cfg.Server.TriggerRateLimit,
		RateBurst: s.cfg.Server.TriggerRateBurst,
	}, s.logger)

	registry := flow.NewBuiltinRegistry(evaluator, delegate, s.logger)

	schedOpts := []flow.SchedulerOption{
		flow.WithObserver(s.collector),
		flow.WithDefaultNodeTimeout(s.cfg.Engine.DefaultNodeTimeout),
	}
	if s.cfg.Engine.ParallelBranches {
		schedOpts = append(schedOpts, flow.WithParallelBranches())
	}
	if s.providers != nil {
		if tracer := s.providers.Tracer("flowgrid/scheduler"); tracer != nil {
			schedOpts = append(schedOpts, flow.WithTracer(tracer))
		}
	}
	scheduler := flow.NewScheduler(registry, s.logger, schedOpts...)

	if s.cfg.TraceStore.Enabled {
		store, err := tracestore.Open(s.cfg.TraceStore.Path, s.logger)
		if err != nil {
			return fmt.Errorf("failed to open trace store: %w", err)
		}
		s.traceStore = store
		s.startPruneLoop()
	}

	s.broker = handlers.NewEventBroker(s.logger)
	s.runner = &workflowRunner{
		library:    newWorkflowLibrary(s.cfg.Engine.WorkflowDir, s.logger),
		scheduler:  scheduler,
		broker:     s.broker,
		store:      s.traceStore,
		runTimeout: s.cfg.Engine.RunTimeout,
		logger:     s.logger.With(zap.String("component", "workflow_runner")),
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.String("workflow_dir", s.cfg.Engine.WorkflowDir),
		zap.Bool("trace_store", s.cfg.TraceStore.Enabled),
		zap.Bool("parallel_branches", s.cfg.Engine.ParallelBranches),
	)
	return nil
}

// buildEvaluator 按配置选择脚本结果缓存后端并创建求值器
func (s *Server) buildEvaluator() (*scriptlet.Evaluator, error) {
	opts := []scriptlet.Option{
		scriptlet.WithCompiledCacheSize(s.cfg.Scriptlet.CompiledCacheSize),
	}

	switch s.cfg.Scriptlet.ResultCacheBackend {
	case "memory":
		opts = append(opts, scriptlet.WithResultCache(scriptlet.NewMemoryCache(s.cfg.Scriptlet.ResultCacheSize)))
	case "redis":
		manager, err := cache.NewManager(cache.Config{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			DefaultTTL:   s.cfg.Scriptlet.ResultCacheTTL,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		}, s.logger)
		if err != nil {
			// Redis 不可用时退化为进程内缓存，引擎照常工作
			s.logger.Warn("Redis not available, falling back to in-memory result cache", zap.Error(err))
			opts = append(opts, scriptlet.WithResultCache(scriptlet.NewMemoryCache(s.cfg.Scriptlet.ResultCacheSize)))
			break
		}
		s.cacheManager = manager
		opts = append(opts, scriptlet.WithResultCache(
			cache.NewResultCache(manager, s.cfg.Scriptlet.ResultCacheTTL, s.logger)))
	case "none":
		// 不缓存
	default:
		return nil, fmt.Errorf("unknown result cache backend: %s", s.cfg.Scriptlet.ResultCacheBackend)
	}

	return scriptlet.New(s.logger, opts...), nil
}

// startPruneLoop 周期性淘汰超出保留窗口的运行存档
func (s *Server) startPruneLoop() {
	if s.cfg.TraceStore.MaxRuns <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.pruneCancel = cancel

	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.traceStore.Prune(ctx, s.cfg.TraceStore.MaxRuns); err != nil {
					s.logger.Warn("trace store prune failed", zap.Error(err))
				}
			}
		}
	}()
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	healthHandler := handlers.NewHealthHandler(s.logger)
	if s.cacheManager != nil {
		healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cacheManager.Ping))
	}
	if s.traceStore != nil {
		healthHandler.RegisterCheck(handlers.NewPingCheck("tracestore", s.traceStore.Ping))
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Trigger: handlers.NewTriggerHandler(s.runner, s.collector, s.logger),
		Health:  healthHandler,
		Stream:  handlers.NewStreamHandler(s.broker, s.logger),
		Metrics: s.collector,
	})

	handler := Chain(router,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.pruneCancel != nil {
		s.pruneCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("Cache manager shutdown error", zap.Error(err))
		}
	}
	if s.traceStore != nil {
		if err := s.traceStore.Close(); err != nil {
			s.logger.Error("Trace store shutdown error", zap.Error(err))
		}
	}
	if s.providers != nil {
		if err := s.providers.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

// =============================================================================
// 🏃 工作流运行器
// =============================================================================

// workflowRunner 把触发请求翻译成一次调度器运行，实现 handlers.WorkflowRunner
type workflowRunner struct {
	library    *workflowLibrary
	scheduler  *flow.Scheduler
	broker     *handlers.EventBroker
	store      *tracestore.Store
	runTimeout time.Duration
	logger     *zap.Logger
}

func (r *workflowRunner) RunWorkflow(ctx context.Context, workflowID string, input any, stack flow.CallStack) (any, error) {
	graph, err := r.library.Load(workflowID)
	if err != nil {
		return nil, err
	}

	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	runID := uuid.NewString()
	now := time.Now()
	trace, err := r.scheduler.Run(ctx, graph, flow.NewEnvelope(input, now, now), flow.RunOptions{
		RunID:             runID,
		CallStack:         stack,
		OnNodeStateChange: r.broker.StateCallback(runID, graph.ID),
	})
	if err != nil {
		return nil, err
	}

	r.archive(trace)

	if trace.Status != flow.RunStatusCompleted {
		return nil, runError(trace)
	}

	return map[string]any{
		"runId":         trace.RunID,
		"status":        string(trace.Status),
		"output":        trace.FinalOutput().Values(),
		"nodesExecuted": len(trace.ExecutedNodes()),
	}, nil
}

// archive 存档运行轨迹；存档失败不影响触发结果
func (r *workflowRunner) archive(trace *flow.RunTrace) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.Save(ctx, trace); err != nil {
		r.logger.Warn("trace archive failed",
			zap.String("run_id", trace.RunID),
			zap.Error(err),
		)
	}
}

// runError 将失败的运行转换为带错误码的结构化错误
func runError(trace *flow.RunTrace) error {
	message := fmt.Sprintf("run %s finished with status %s", trace.RunID, trace.Status)
	// 取最后一个错误信封的消息，给调用方可读的失败原因
	executed := trace.ExecutedNodes()
	for i := len(executed) - 1; i >= 0; i-- {
		if env, ok := trace.Result(executed[i]); ok && env.IsError() {
			message = env.Meta.ErrorMessage
			break
		}
	}

	code := types.ErrExecution
	if trace.Status == flow.RunStatusTimeout {
		code = types.ErrTimeout
	}
	return types.NewError(code, message)
}
