package scriptlet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/types"
)

func TestEvaluator_Eval(t *testing.T) {
	t.Parallel()
	e := New(zap.NewNop())

	t.Run("expression over bindings", func(t *testing.T) {
		t.Parallel()
		got, err := e.Eval(context.Background(), "return data + 1", map[string]any{"data": 41})
		require.NoError(t, err)
		assert.Equal(t, float64(42), got)
	})

	t.Run("table result becomes map", func(t *testing.T) {
		t.Parallel()
		got, err := e.Eval(context.Background(), "return {status = 'ok', count = 2}", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"status": "ok", "count": float64(2)}, got)
	})

	t.Run("array result becomes slice", func(t *testing.T) {
		t.Parallel()
		got, err := e.Eval(context.Background(), "return {1, 2, 3}", nil)
		require.NoError(t, err)
		assert.Equal(t, []any{float64(1), float64(2), float64(3)}, got)
	})

	t.Run("nested bindings round-trip", func(t *testing.T) {
		t.Parallel()
		bindings := map[string]any{
			"data": map[string]any{"items": []any{"a", "b"}, "n": float64(2)},
		}
		got, err := e.Eval(context.Background(), "return data.items[2]", bindings)
		require.NoError(t, err)
		assert.Equal(t, "b", got)
	})
}

func TestEvaluator_CompilationError(t *testing.T) {
	t.Parallel()
	e := New(zap.NewNop())
	_, err := e.Eval(context.Background(), "return (((", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrCompilation, types.GetErrorCode(err))
}

func TestEvaluator_RuntimeErrorSurfacesMessage(t *testing.T) {
	t.Parallel()
	e := New(zap.NewNop())
	_, err := e.Eval(context.Background(), "error('x')", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrExecution, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "x")
}

func TestEvaluator_CheckSyntax(t *testing.T) {
	t.Parallel()
	e := New(zap.NewNop())
	assert.NoError(t, e.CheckSyntax("return 1"))
	assert.Error(t, e.CheckSyntax(""))
	assert.Error(t, e.CheckSyntax("return ((("))
}

func TestWrapExpression(t *testing.T) {
	t.Parallel()
	e := New(zap.NewNop())
	got, err := e.Eval(context.Background(), WrapExpression(" value > 3 "), map[string]any{"value": 5})
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestEvaluator_RestrictedLibraries(t *testing.T) {
	t.Parallel()
	e := New(zap.NewNop())

	// Allowed: string and math.
	got, err := e.Eval(context.Background(), "return string.upper('ok') .. math.floor(1.9)", nil)
	require.NoError(t, err)
	assert.Equal(t, "OK1", got)

	// os and io never open.
	for _, code := range []string{"return os.time()", "return io.read()"} {
		_, err := e.Eval(context.Background(), code, nil)
		assert.Error(t, err, code)
	}
}

func TestEvaluator_ContextCancellation(t *testing.T) {
	t.Parallel()
	e := New(zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Eval(ctx, "while true do end", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrExecution, types.GetErrorCode(err))
	assert.Less(t, time.Since(start), 2*time.Second, "a runaway loop must stop with the context")
}

func TestEvaluator_EvalAsync(t *testing.T) {
	t.Parallel()
	e := New(zap.NewNop())

	ch := e.EvalAsync(context.Background(), "return data * 2", map[string]any{"data": 4})
	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		assert.Equal(t, float64(8), res.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("async evaluation never settled")
	}
}

func TestEvaluator_EvalCached(t *testing.T) {
	t.Parallel()
	e := New(zap.NewNop(), WithResultCache(NewMemoryCache(8)))
	bindings := map[string]any{"data": 3}

	first, cached, err := e.EvalCached(context.Background(), "return data * 3", bindings)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, float64(9), first)

	second, cached, err := e.EvalCached(context.Background(), "return data * 3", bindings)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, float64(9), second)

	// Errors are never cached.
	_, cached, err = e.EvalCached(context.Background(), "error('nope')", bindings)
	require.Error(t, err)
	assert.False(t, cached)
	_, cached, err = e.EvalCached(context.Background(), "error('nope')", bindings)
	require.Error(t, err)
	assert.False(t, cached)
}

func TestEvaluator_EvalCached_WithoutCacheFallsThrough(t *testing.T) {
	t.Parallel()
	e := New(zap.NewNop())
	got, cached, err := e.EvalCached(context.Background(), "return 1", nil)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, float64(1), got)
}

func TestEvaluator_ConcurrentEvaluations(t *testing.T) {
	t.Parallel()
	e := New(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := e.Eval(context.Background(), "return data + 1", map[string]any{"data": n})
			assert.NoError(t, err)
			assert.Equal(t, float64(n+1), got)
		}(i)
	}
	wg.Wait()
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := Fingerprint("return data", map[string]any{"x": 1, "y": 2})
	b := Fingerprint("return data", map[string]any{"y": 2, "x": 1})
	assert.Equal(t, a, b, "binding key order must not change the fingerprint")

	assert.NotEqual(t, a, Fingerprint("return data", map[string]any{"x": 1, "y": 3}))
	assert.NotEqual(t, a, Fingerprint("return data .. ''", map[string]any{"x": 1, "y": 2}))
}
