// =============================================================================
// 📦 FlowGrid 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Engine:     DefaultEngineConfig(),
		Scriptlet:  DefaultScriptletConfig(),
		Redis:      DefaultRedisConfig(),
		TraceStore: DefaultTraceStoreConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:         8080,
		ReadTimeout:      30 * time.Second,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		TriggerRateLimit: 50,
		TriggerRateBurst: 100,
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultNodeTimeout: 30 * time.Second,
		RunTimeout:         10 * time.Minute,
		ParallelBranches:   false,
		WorkflowDir:        "workflows",
	}
}

// DefaultScriptletConfig 返回默认脚本求值配置
func DefaultScriptletConfig() ScriptletConfig {
	return ScriptletConfig{
		CompiledCacheSize:  256,
		ResultCacheBackend: "memory",
		ResultCacheSize:    1024,
		ResultCacheTTL:     10 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultTraceStoreConfig 返回默认运行轨迹存档配置
func DefaultTraceStoreConfig() TraceStoreConfig {
	return TraceStoreConfig{
		Enabled: true,
		Path:    "flowgrid.db",
		MaxRuns: 10000,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "flowgrid",
		SampleRate:   0.1,
	}
}
