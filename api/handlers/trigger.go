package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/api"
	"github.com/BaSui01/flowgrid/flow"
	"github.com/BaSui01/flowgrid/types"
)

// =============================================================================
// 🚀 工作流触发 Handler
// =============================================================================

// WorkflowRunner 按 ID 执行一条工作流。cmd/flowgrid 的服务装配实现它。
type WorkflowRunner interface {
	RunWorkflow(ctx context.Context, workflowID string, input any, stack flow.CallStack) (any, error)
}

// TriggerRecorder 接收触发结果指标，可为 nil
type TriggerRecorder interface {
	RecordSubworkflowTrigger(status string)
}

// TriggerHandler 处理 POST /api/workflows/{id}/trigger。
// 客户端（子工作流节点）已做循环检查，这里在服务端镜像一次兜底：
// 任何绕过官方客户端的调用方同样无法构造自触发循环。
type TriggerHandler struct {
	runner   WorkflowRunner
	recorder TriggerRecorder
	logger   *zap.Logger
}

// NewTriggerHandler 创建触发处理器
func NewTriggerHandler(runner WorkflowRunner, recorder TriggerRecorder, logger *zap.Logger) *TriggerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriggerHandler{
		runner:   runner,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "trigger_handler")),
	}
}

// HandleTrigger 处理触发请求
func (h *TriggerHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	if workflowID == "" {
		h.reject(w, http.StatusBadRequest, "workflow id is required")
		return
	}

	var req api.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.reject(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	stack := flow.CallStack(req.CallStack)

	// 客户端发来的栈已包含目标工作流自身（入栈后再触发），
	// 镜像检查只看去掉栈顶后的部分
	ancestors := stack
	if n := len(ancestors); n > 0 && ancestors[n-1] == workflowID {
		ancestors = ancestors[:n-1]
	}
	if ancestors.Contains(workflowID) {
		h.logger.Warn("circular workflow invocation rejected at server boundary",
			zap.String("workflow_id", workflowID),
			zap.Strings("call_stack", stack),
		)
		h.reject(w, http.StatusConflict,
			fmt.Sprintf("circular workflow invocation: %s", ancestors.Describe(workflowID)))
		return
	}

	full := stack
	if n := len(full); n == 0 || full[n-1] != workflowID {
		full = full.Push(workflowID)
	}

	h.logger.Info("workflow trigger accepted",
		zap.String("workflow_id", workflowID),
		zap.String("source", req.Metadata.Source),
		zap.String("source_node", req.Metadata.SourceNodeID),
		zap.String("parent_workflow", req.Metadata.ParentWorkflowID),
		zap.Int("stack_depth", len(full)),
	)

	ctx := flow.WithCallStack(r.Context(), full)
	result, err := h.runner.RunWorkflow(ctx, workflowID, req.Prompt, full)
	if err != nil {
		h.reject(w, statusFromError(err), err.Error())
		return
	}

	if h.recorder != nil {
		h.recorder.RecordSubworkflowTrigger("completed")
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *TriggerHandler) reject(w http.ResponseWriter, status int, message string) {
	if h.recorder != nil {
		h.recorder.RecordSubworkflowTrigger("rejected")
	}
	WriteTriggerError(w, status, message, h.logger)
}

// statusFromError 将引擎错误码映射到 HTTP 状态
func statusFromError(err error) int {
	switch types.GetErrorCode(err) {
	case types.ErrCircularDep:
		return http.StatusConflict
	case types.ErrValidation, types.ErrGraphCycle, types.ErrConfiguration:
		return http.StatusBadRequest
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
