package tracestore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/flow"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "traces.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func finishedTrace(workflowID string, status flow.RunStatus) *flow.RunTrace {
	trace := flow.NewRunTrace(workflowID)
	start := time.Now()
	trace.SetState("entry", flow.NodeStateCompleted)
	trace.Record("entry", flow.NewEnvelope(map[string]any{"value": 1}, start, start.Add(time.Millisecond)))
	trace.SetState("calc", flow.NodeStateCompleted)
	trace.Record("calc", flow.NewEnvelope(float64(2), start, start.Add(2*time.Millisecond)))
	trace.Status = status
	trace.EndTime = start.Add(5 * time.Millisecond)
	return trace
}

func TestStore_SaveAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	trace := finishedTrace("wf-1", flow.RunStatusCompleted)
	require.NoError(t, store.Save(ctx, trace))

	record, err := store.Get(ctx, trace.RunID)
	require.NoError(t, err)
	assert.Equal(t, trace.RunID, record.RunID)
	assert.Equal(t, "wf-1", record.WorkflowID)
	assert.Equal(t, string(flow.RunStatusCompleted), record.Status)
	assert.Equal(t, 2, record.NodesExecuted)

	results, err := record.Results()
	require.NoError(t, err)
	require.Contains(t, results, "calc")
	assert.Equal(t, float64(2), results["calc"].First())

	states, err := record.States()
	require.NoError(t, err)
	assert.Equal(t, flow.NodeStateCompleted, states["entry"])
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveNilTrace(t *testing.T) {
	store := openTestStore(t)

	assert.Error(t, store.Save(context.Background(), nil))
}

func TestStore_ListByWorkflow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		trace := finishedTrace("wf-list", flow.RunStatusCompleted)
		trace.EndTime = time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Save(ctx, trace))
	}
	other := finishedTrace("wf-other", flow.RunStatusError)
	require.NoError(t, store.Save(ctx, other))

	records, err := store.ListByWorkflow(ctx, "wf-list", 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// 倒序：最近结束的排在前面
	assert.True(t, records[0].EndTime.After(records[1].EndTime))
	assert.True(t, records[1].EndTime.After(records[2].EndTime))

	limited, err := store.ListByWorkflow(ctx, "wf-list", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_Prune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now()
	var newest []string
	for i := 0; i < 10; i++ {
		trace := finishedTrace(fmt.Sprintf("wf-%d", i), flow.RunStatusCompleted)
		trace.EndTime = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Save(ctx, trace))
		if i >= 7 {
			newest = append(newest, trace.RunID)
		}
	}

	require.NoError(t, store.Prune(ctx, 3))

	for _, runID := range newest {
		_, err := store.Get(ctx, runID)
		assert.NoError(t, err, "recent run %s should survive pruning", runID)
	}

	records, err := store.ListByWorkflow(ctx, "wf-0", 10)
	require.NoError(t, err)
	assert.Empty(t, records, "oldest run should be pruned")
}

func TestStore_PruneBelowLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	trace := finishedTrace("wf-keep", flow.RunStatusCompleted)
	require.NoError(t, store.Save(ctx, trace))

	require.NoError(t, store.Prune(ctx, 100))
	require.NoError(t, store.Prune(ctx, 0))

	_, err := store.Get(ctx, trace.RunID)
	assert.NoError(t, err)
}
