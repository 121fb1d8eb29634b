package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// 🗺️ 路由装配
// =============================================================================

// RouterDeps 路由装配所需的处理器集合。Metrics 可为 nil（跳过指标中间件）。
type RouterDeps struct {
	Trigger *TriggerHandler
	Health  *HealthHandler
	Stream  *StreamHandler
	Metrics RequestRecorder
}

// NewRouter 组装服务的全部 HTTP 路由
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	if deps.Trigger != nil {
		mux.HandleFunc("POST /api/workflows/{id}/trigger", deps.Trigger.HandleTrigger)
	}
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/runs/stream", deps.Stream.HandleStream)
	}
	if deps.Health != nil {
		mux.HandleFunc("GET /health", deps.Health.HandleHealth)
		mux.HandleFunc("GET /healthz", deps.Health.HandleHealth)
		mux.HandleFunc("GET /ready", deps.Health.HandleReady)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	if deps.Metrics != nil {
		return MetricsMiddleware(deps.Metrics, mux)
	}
	return mux
}
