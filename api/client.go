package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/flowgrid/flow"
	"github.com/BaSui01/flowgrid/types"
)

// =============================================================================
// 🌐 触发客户端
// =============================================================================

// maxErrorBodySize 限制错误响应体的读取量，防御异常上游
const maxErrorBodySize = 64 * 1024

// ClientConfig 触发客户端配置
type ClientConfig struct {
	// BaseURL 工作流服务地址，如 http://localhost:8080
	BaseURL string
	// RateLimit 每秒允许的触发次数，<=0 表示不限流
	RateLimit float64
	// RateBurst 突发容量
	RateBurst int
	// HTTPClient 可注入自定义客户端，nil 时使用默认
	HTTPClient *http.Client
}

// Client 通过触发 HTTP 边界调用其他工作流，实现 flow.SubworkflowDelegate。
// 限流在进程内生效，避免风暴式的嵌套触发压垮服务端。
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ flow.SubworkflowDelegate = (*Client)(nil)

// NewClient 创建触发客户端
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 0} // 超时由节点层 WithTimeout 控制
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
		}
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    httpClient,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "trigger_client")),
	}
}

// Trigger 实现 flow.SubworkflowDelegate：POST 触发请求并等待结果。
// 循环检查已由调用方（子工作流节点）完成，这里只负责传输。
func (c *Client) Trigger(ctx context.Context, workflowID string, input any, stack flow.CallStack, meta flow.TriggerMetadata) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrExecution, "trigger rate limit wait aborted").WithCause(err)
		}
	}

	body, err := json.Marshal(TriggerRequest{
		Prompt:    input,
		CallStack: stack,
		Metadata:  meta,
	})
	if err != nil {
		return nil, types.NewError(types.ErrExecution, "failed to encode trigger request").WithCause(err)
	}

	url := c.baseURL + TriggerPath(workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrExecution, "failed to build trigger request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrExecution, "trigger request failed").
			WithCause(err).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	c.logger.Debug("sub-workflow triggered",
		zap.String("workflow_id", workflowID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.decodeError(resp, workflowID)
	}

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, types.NewError(types.ErrExecution, "failed to decode trigger response").WithCause(err)
	}
	return result, nil
}

// decodeError 将 {error: string} 响应体转换为结构化错误。
// 循环依赖拒绝保留其错误码，便于上游区分。
func (c *Client) decodeError(resp *http.Response, workflowID string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	message := fmt.Sprintf("workflow %s trigger rejected with status %d", workflowID, resp.StatusCode)
	var te TriggerError
	if json.Unmarshal(data, &te) == nil && te.Error != "" {
		message = te.Error
	}

	code := types.ErrExecution
	if resp.StatusCode == http.StatusConflict {
		code = types.ErrCircularDep
	}

	return types.NewError(code, message).
		WithHTTPStatus(resp.StatusCode).
		WithRetryable(resp.StatusCode >= 500)
}
