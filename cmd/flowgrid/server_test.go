package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/api/handlers"
	"github.com/BaSui01/flowgrid/flow"
	"github.com/BaSui01/flowgrid/internal/tracestore"
	"github.com/BaSui01/flowgrid/scriptlet"
	"github.com/BaSui01/flowgrid/types"
)

const incrementWorkflow = `{
  "nodes": [
    {"id": "entry", "type": "trigger"},
    {"id": "inc", "type": "function", "config": {"code": "return data + 1"}}
  ],
  "edges": [
    {"source": "entry", "target": "inc"}
  ]
}`

const failingWorkflow = `{
  "nodes": [
    {"id": "entry", "type": "trigger"},
    {"id": "bad", "type": "function", "config": {"code": "error('exploded')"}}
  ],
  "edges": [
    {"source": "entry", "target": "bad"}
  ]
}`

func newTestRunner(t *testing.T, dir string, store *tracestore.Store) (*workflowRunner, *handlers.EventBroker) {
	t.Helper()
	logger := zap.NewNop()
	registry := flow.NewBuiltinRegistry(scriptlet.New(logger), nil, logger)
	broker := handlers.NewEventBroker(logger)
	runner := &workflowRunner{
		library:    newWorkflowLibrary(dir, logger),
		scheduler:  flow.NewScheduler(registry, logger),
		broker:     broker,
		store:      store,
		runTimeout: 30 * time.Second,
		logger:     logger,
	}
	return runner, broker
}

func TestWorkflowRunner_Success(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inc.json"), []byte(incrementWorkflow), 0o644))

	runner, _ := newTestRunner(t, dir, nil)
	result, err := runner.RunWorkflow(context.Background(), "inc", float64(41), nil)
	require.NoError(t, err)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(flow.RunStatusCompleted), m["status"])
	assert.Equal(t, 2, m["nodesExecuted"])
	assert.Equal(t, []any{float64(42)}, m["output"])
	assert.NotEmpty(t, m["runId"])
}

func TestWorkflowRunner_PublishesEvents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inc.json"), []byte(incrementWorkflow), 0o644))

	runner, broker := newTestRunner(t, dir, nil)
	events, cancel := broker.Subscribe()
	defer cancel()

	result, err := runner.RunWorkflow(context.Background(), "inc", float64(1), nil)
	require.NoError(t, err)
	runID := result.(map[string]any)["runId"].(string)

	// entry 与 inc 各产生 running + completed 两个事件
	var got []handlers.RunEvent
	for i := 0; i < 4; i++ {
		select {
		case event := <-events:
			assert.Equal(t, runID, event.RunID)
			got = append(got, event)
		case <-time.After(time.Second):
			t.Fatalf("expected 4 events, got %d", len(got))
		}
	}
	assert.Equal(t, "entry", got[0].NodeID)
	assert.Equal(t, flow.NodeStateRunning, got[0].State)
	assert.Equal(t, "inc", got[3].NodeID)
	assert.Equal(t, flow.NodeStateCompleted, got[3].State)
}

func TestWorkflowRunner_FailedRunSurfacesNodeError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(failingWorkflow), 0o644))

	runner, _ := newTestRunner(t, dir, nil)
	_, err := runner.RunWorkflow(context.Background(), "bad", nil, nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrExecution))
	assert.Contains(t, err.Error(), "exploded")
}

func TestWorkflowRunner_ArchivesTrace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inc.json"), []byte(incrementWorkflow), 0o644))

	store, err := tracestore.Open(filepath.Join(t.TempDir(), "traces.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runner, _ := newTestRunner(t, dir, store)
	result, err := runner.RunWorkflow(context.Background(), "inc", float64(1), nil)
	require.NoError(t, err)
	runID := result.(map[string]any)["runId"].(string)

	record, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "inc", record.WorkflowID)
	assert.Equal(t, string(flow.RunStatusCompleted), record.Status)
	assert.Equal(t, 2, record.NodesExecuted)
}

func TestWorkflowRunner_UnknownWorkflow(t *testing.T) {
	runner, _ := newTestRunner(t, t.TempDir(), nil)

	_, err := runner.RunWorkflow(context.Background(), "missing", nil, nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrValidation))
}
