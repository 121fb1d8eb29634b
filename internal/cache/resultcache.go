package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 📦 脚本结果缓存
// =============================================================================

// resultKeyPrefix 与其他业务键隔离的命名空间
const resultKeyPrefix = "flowgrid:scriptlet:"

// ResultCache 在 Manager 之上实现 scriptlet.ResultCache 接口，
// 缓存未命中与 Redis 故障都表现为 miss，求值路径永不因缓存层失败。
type ResultCache struct {
	manager *Manager
	ttl     time.Duration
	logger  *zap.Logger
}

// NewResultCache 创建脚本结果缓存，ttl 为 0 时使用 Manager 的默认过期时间
func NewResultCache(manager *Manager, ttl time.Duration, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{
		manager: manager,
		ttl:     ttl,
		logger:  logger.With(zap.String("component", "result_cache")),
	}
}

// Get 按指纹键读取求值结果
func (c *ResultCache) Get(ctx context.Context, key string) (any, bool) {
	var value any
	err := c.manager.GetJSON(ctx, resultKeyPrefix+key, &value)
	if err != nil {
		if !IsCacheMiss(err) {
			c.logger.Warn("result cache get failed", zap.Error(err))
		}
		return nil, false
	}
	return value, true
}

// Set 按指纹键写入求值结果，写失败仅记录日志
func (c *ResultCache) Set(ctx context.Context, key string, value any) {
	if err := c.manager.SetJSON(ctx, resultKeyPrefix+key, value, c.ttl); err != nil {
		c.logger.Warn("result cache set failed", zap.Error(err))
	}
}
