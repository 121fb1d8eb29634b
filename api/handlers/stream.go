package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/flow"
)

// =============================================================================
// 📡 运行事件流
// =============================================================================

// subscriberBuffer 是单个订阅者的事件缓冲。写满即丢弃，
// 慢消费者只会错过事件，不会拖住调度器。
const subscriberBuffer = 64

// RunEvent 是推送给画布前端的节点状态变更事件
type RunEvent struct {
	RunID      string         `json:"runId"`
	WorkflowID string         `json:"workflowId,omitempty"`
	NodeID     string         `json:"nodeId"`
	State      flow.NodeState `json:"state"`
	Timestamp  time.Time      `json:"timestamp"`
}

// EventBroker 在调度器回调与 WebSocket 订阅者之间中转运行事件
type EventBroker struct {
	mu     sync.RWMutex
	subs   map[chan RunEvent]struct{}
	logger *zap.Logger
}

// NewEventBroker 创建事件中转器
func NewEventBroker(logger *zap.Logger) *EventBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBroker{
		subs:   make(map[chan RunEvent]struct{}),
		logger: logger.With(zap.String("component", "event_broker")),
	}
}

// Publish 向所有订阅者广播事件，从不阻塞
func (b *EventBroker) Publish(event RunEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			// 订阅者跟不上，丢弃该事件
		}
	}
}

// Subscribe 注册一个订阅者，返回事件通道与注销函数
func (b *EventBroker) Subscribe() (<-chan RunEvent, func()) {
	ch := make(chan RunEvent, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount 返回当前订阅者数量
func (b *EventBroker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// StateCallback 生成可挂到 RunOptions.OnNodeStateChange 的回调，
// 把一次运行的状态变更转成广播事件。
func (b *EventBroker) StateCallback(runID, workflowID string) func(nodeID string, state flow.NodeState) {
	return func(nodeID string, state flow.NodeState) {
		b.Publish(RunEvent{
			RunID:      runID,
			WorkflowID: workflowID,
			NodeID:     nodeID,
			State:      state,
			Timestamp:  time.Now(),
		})
	}
}

// =============================================================================
// 🔌 WebSocket Handler
// =============================================================================

// StreamHandler 将运行事件通过 WebSocket 推送给画布前端
type StreamHandler struct {
	broker *EventBroker
	logger *zap.Logger
}

// NewStreamHandler 创建事件流处理器
func NewStreamHandler(broker *EventBroker, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		broker: broker,
		logger: logger.With(zap.String("component", "stream_handler")),
	}
}

// HandleStream 处理 GET /api/runs/stream 的 WebSocket 升级。
// 可选查询参数 runId 仅订阅某一次运行的事件。
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream terminated")

	runFilter := r.URL.Query().Get("runId")

	events, cancel := h.broker.Subscribe()
	defer cancel()

	// CloseRead 在后台消费控制帧，对端关闭时取消上下文
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("run event subscriber connected",
		zap.String("run_filter", runFilter),
		zap.String("remote", r.RemoteAddr),
	)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-events:
			if runFilter != "" && event.RunID != runFilter {
				continue
			}
			if err := h.writeEvent(ctx, conn, event); err != nil {
				h.logger.Debug("run event write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *StreamHandler) writeEvent(ctx context.Context, conn *websocket.Conn, event RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
