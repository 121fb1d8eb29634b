package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/flow"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.runsTotal)
	assert.NotNil(t, collector.nodeExecutionsTotal)
	assert.NotNil(t, collector.cacheHits)
	assert.NotNil(t, collector.subworkflowTriggersTotal)
}

func TestCollector_NodeExecuted(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.NodeExecuted("function", flow.NodeStateCompleted, 10*time.Millisecond)
	collector.NodeExecuted("function", flow.NodeStateFailed, 5*time.Millisecond)
	collector.NodeExecuted("decision", flow.NodeStateSkipped, 0)

	count := testutil.CollectAndCount(collector.nodeExecutionsTotal)
	assert.Equal(t, 3, count)

	// 跳过的节点不计入耗时直方图
	durations := testutil.CollectAndCount(collector.nodeExecutionDuration)
	assert.Equal(t, 1, durations, "one node_type observed durations")
}

func TestCollector_RunFinished(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RunFinished(flow.RunStatusCompleted, 120*time.Millisecond, 3)
	collector.RunFinished(flow.RunStatusError, 50*time.Millisecond, 1)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.runsTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.runDuration))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	// 记录请求
	collector.RecordHTTPRequest("POST", "/api/workflows/:id/trigger", 200, 100*time.Millisecond)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	// 再记录一次相同的请求
	collector.RecordHTTPRequest("POST", "/api/workflows/:id/trigger", 400, 50*time.Millisecond)

	newCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_CacheCounters(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("scriptlet")
	collector.RecordCacheHit("scriptlet")
	collector.RecordCacheMiss("scriptlet")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.cacheHits.WithLabelValues("scriptlet")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheMisses.WithLabelValues("scriptlet")))
}

func TestCollector_SubworkflowTriggers(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordSubworkflowTrigger("success")
	collector.RecordSubworkflowTrigger("error")

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.subworkflowTriggersTotal.WithLabelValues("success")))
}

// statusCode 归类
func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(42))
}
