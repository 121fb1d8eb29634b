package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	// 创建 miniredis 实例
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// 创建 Manager
	logger := zap.NewNop()
	config := Config{
		Addr:       mr.Addr(),
		Password:   "",
		DB:         0,
		DefaultTTL: 1 * time.Minute,
	}

	manager, err := NewManager(config, logger)
	require.NoError(t, err)

	return mr, manager
}

func TestNewManager(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	assert.NotNil(t, manager)
	assert.NotNil(t, manager.redis)
	assert.NotNil(t, manager.logger)
}

func TestNewManager_ConnectionFailure(t *testing.T) {
	_, err := NewManager(Config{Addr: "127.0.0.1:1"}, zap.NewNop())
	assert.Error(t, err)
}

func TestManager_SetAndGetJSON(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()

	// 写入结构化值
	err := manager.SetJSON(ctx, "test-key", map[string]any{"n": 42}, time.Minute)
	require.NoError(t, err)

	// 读取并反序列化
	var got map[string]any
	err = manager.GetJSON(ctx, "test-key", &got)
	require.NoError(t, err)
	assert.Equal(t, float64(42), got["n"])
}

func TestManager_GetJSON_Miss(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	var got any
	err := manager.GetJSON(context.Background(), "absent", &got)
	require.Error(t, err)
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()
	require.NoError(t, manager.SetJSON(ctx, "k", "v", time.Minute))
	require.NoError(t, manager.Delete(ctx, "k"))

	var got any
	assert.True(t, IsCacheMiss(manager.GetJSON(ctx, "k", &got)))
}

func TestManager_TTLExpiry(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()
	require.NoError(t, manager.SetJSON(ctx, "k", "v", 10*time.Second))

	// miniredis 的时钟手动推进
	mr.FastForward(11 * time.Second)

	var got any
	assert.True(t, IsCacheMiss(manager.GetJSON(ctx, "k", &got)))
}

func TestManager_ClosedRejectsOperations(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close(), "double close is safe")

	ctx := context.Background()
	var got any
	assert.Error(t, manager.GetJSON(ctx, "k", &got))
	assert.Error(t, manager.SetJSON(ctx, "k", "v", 0))
	assert.Error(t, manager.Ping(ctx))
}

// =============================================================================
// 🧪 ResultCache 测试
// =============================================================================

func TestResultCache_RoundTrip(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	rc := NewResultCache(manager, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, ok := rc.Get(ctx, "fingerprint-1")
	assert.False(t, ok)

	rc.Set(ctx, "fingerprint-1", map[string]any{"result": "ok"})
	got, ok := rc.Get(ctx, "fingerprint-1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"result": "ok"}, got)
}

func TestResultCache_KeysAreNamespaced(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	rc := NewResultCache(manager, 0, zap.NewNop())
	rc.Set(context.Background(), "abc", 1)

	assert.True(t, mr.Exists(resultKeyPrefix+"abc"))
	assert.False(t, mr.Exists("abc"))
}

func TestResultCache_MissAfterBackendGone(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer manager.Close()

	rc := NewResultCache(manager, time.Minute, zap.NewNop())
	rc.Set(context.Background(), "k", "v")

	// 后端不可用时取值表现为未命中，求值路径继续工作
	mr.Close()
	_, ok := rc.Get(context.Background(), "k")
	assert.False(t, ok)
}
