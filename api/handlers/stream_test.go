package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/flow"
)

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) RunEvent {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var event RunEvent
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestEventBroker_PublishSubscribe(t *testing.T) {
	broker := NewEventBroker(zap.NewNop())

	events, cancel := broker.Subscribe()
	require.Equal(t, 1, broker.SubscriberCount())

	broker.Publish(RunEvent{RunID: "r1", NodeID: "n1", State: flow.NodeStateRunning})

	select {
	case event := <-events:
		assert.Equal(t, "r1", event.RunID)
		assert.Equal(t, flow.NodeStateRunning, event.State)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	assert.Equal(t, 0, broker.SubscriberCount())
}

func TestEventBroker_SlowSubscriberDropsEvents(t *testing.T) {
	broker := NewEventBroker(zap.NewNop())

	events, cancel := broker.Subscribe()
	defer cancel()

	// 写满缓冲后继续发布不得阻塞
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			broker.Publish(RunEvent{RunID: "r1", NodeID: "n", State: flow.NodeStateCompleted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, events, subscriberBuffer)
}

func TestEventBroker_StateCallback(t *testing.T) {
	broker := NewEventBroker(zap.NewNop())
	events, cancel := broker.Subscribe()
	defer cancel()

	callback := broker.StateCallback("run-9", "wf-9")
	callback("node-a", flow.NodeStateCompleted)

	select {
	case event := <-events:
		assert.Equal(t, "run-9", event.RunID)
		assert.Equal(t, "wf-9", event.WorkflowID)
		assert.Equal(t, "node-a", event.NodeID)
		assert.Equal(t, flow.NodeStateCompleted, event.State)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("callback did not publish")
	}
}

func TestStreamHandler_DeliversEventsOverWebSocket(t *testing.T) {
	broker := NewEventBroker(zap.NewNop())
	handler := NewStreamHandler(broker, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleStream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// 等订阅注册完成后再发布
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	broker.Publish(RunEvent{RunID: "run-1", NodeID: "entry", State: flow.NodeStateRunning, Timestamp: time.Now()})

	event := readEvent(t, ctx, conn)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, "entry", event.NodeID)
}

func TestStreamHandler_RunFilter(t *testing.T) {
	broker := NewEventBroker(zap.NewNop())
	handler := NewStreamHandler(broker, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleStream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):]+"?runId=wanted", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return broker.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	broker.Publish(RunEvent{RunID: "other", NodeID: "x", State: flow.NodeStateRunning})
	broker.Publish(RunEvent{RunID: "wanted", NodeID: "y", State: flow.NodeStateCompleted})

	event := readEvent(t, ctx, conn)
	assert.Equal(t, "wanted", event.RunID)
	assert.Equal(t, "y", event.NodeID)
}
