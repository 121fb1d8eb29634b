package flow

import (
	"time"
)

// Node configuration maps come from decoded JSON/YAML, so numbers may arrive
// as float64, int, or int64 depending on the decoder. These accessors
// normalize the lookups executors perform.

func configString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

func configBool(cfg map[string]any, key string) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return false
}

func configNumber(cfg map[string]any, key string) (float64, bool) {
	switch v := cfg[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// configDuration reads a millisecond count, falling back to def when the key
// is absent or not numeric.
func configDuration(cfg map[string]any, key string, def time.Duration) time.Duration {
	if ms, ok := configNumber(cfg, key); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
