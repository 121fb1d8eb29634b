package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/api"
)

// =============================================================================
// 📦 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// 响应头已发出，编码失败只能放弃
		return
	}
}

// WriteTriggerError 按触发边界协议写入 {error: string} 错误体
func WriteTriggerError(w http.ResponseWriter, status int, message string, logger *zap.Logger) {
	if logger != nil {
		logger.Warn("trigger request rejected",
			zap.Int("status", status),
			zap.String("error", message),
		)
	}
	WriteJSON(w, status, api.TriggerError{Error: message})
}

// =============================================================================
// 📊 响应包装器与指标中间件
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// RequestRecorder 接收 HTTP 请求指标。internal/metrics.Collector 实现它。
type RequestRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// MetricsMiddleware 记录每个请求的方法、路由模式、状态码与耗时。
// 路由模式取自 ServeMux 匹配结果，避免路径参数撑爆标签基数。
func MetricsMiddleware(recorder RequestRecorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w)
		start := time.Now()

		next.ServeHTTP(rw, r)

		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}
		recorder.RecordHTTPRequest(r.Method, path, rw.StatusCode, time.Since(start))
	})
}
