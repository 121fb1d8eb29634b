package api

import (
	"github.com/BaSui01/flowgrid/flow"
)

// =============================================================================
// 📦 触发协议结构
// =============================================================================

// TriggerRequest 是工作流触发请求体。调用栈字段名以下划线开头，
// 与画布前端的保留字段约定保持一致。
type TriggerRequest struct {
	Prompt    any                  `json:"prompt"`
	CallStack []string             `json:"_callStack,omitempty"`
	Metadata  flow.TriggerMetadata `json:"metadata"`
}

// TriggerError 是触发边界的错误响应体。成功时返回任意 JSON 结果对象，
// 失败（含循环依赖拒绝）时返回 4xx/5xx 加本结构。
type TriggerError struct {
	Error string `json:"error"`
}

// TriggerPath 返回指定工作流的触发端点路径。
func TriggerPath(workflowID string) string {
	return "/api/workflows/" + workflowID + "/trigger"
}
