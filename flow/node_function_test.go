package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/scriptlet"
	"github.com/BaSui01/flowgrid/types"
)

func newFunction(t *testing.T, opts ...scriptlet.Option) *FunctionExecutor {
	t.Helper()
	return NewFunctionExecutor(scriptlet.New(zap.NewNop(), opts...), zap.NewNop())
}

func TestFunctionExecutor_ReturnsValue(t *testing.T) {
	t.Parallel()
	env, err := newFunction(t).Execute(context.Background(),
		map[string]any{"code": "return data + 1"}, mainInput(41))
	require.NoError(t, err)
	assert.False(t, env.IsError())
	assert.Equal(t, float64(42), env.First())
}

func TestFunctionExecutor_InputsBinding(t *testing.T) {
	t.Parallel()
	inputs := mainInput("primary")
	now := inputs[PortMain].Meta.StartTime
	inputs["aux"] = NewEnvelope("secondary", now, now)

	env, err := newFunction(t).Execute(context.Background(),
		map[string]any{"code": "return inputs.aux[1]"}, inputs)
	require.NoError(t, err)
	assert.Equal(t, "secondary", env.First())
}

func TestFunctionExecutor_ErrorHandlingModes(t *testing.T) {
	t.Parallel()
	fn := newFunction(t)
	failing := map[string]any{"code": "error('x')"}

	t.Run("throw routes to error port", func(t *testing.T) {
		t.Parallel()
		cfg := map[string]any{"code": failing["code"], "errorHandling": ErrorHandlingThrow}
		env, err := fn.Execute(context.Background(), cfg, mainInput(1))
		require.NoError(t, err)
		assert.True(t, env.IsError())
		assert.Contains(t, env.Meta.ErrorMessage, "x")
	})

	t.Run("return wraps the error as data", func(t *testing.T) {
		t.Parallel()
		cfg := map[string]any{"code": failing["code"], "errorHandling": ErrorHandlingReturn}
		env, err := fn.Execute(context.Background(), cfg, mainInput(1))
		require.NoError(t, err)
		assert.False(t, env.IsError())
		item, ok := env.First().(map[string]any)
		require.True(t, ok)
		assert.Contains(t, item["error"], "x")
	})

	t.Run("null substitutes nil", func(t *testing.T) {
		t.Parallel()
		cfg := map[string]any{"code": failing["code"], "errorHandling": ErrorHandlingNull}
		env, err := fn.Execute(context.Background(), cfg, mainInput(1))
		require.NoError(t, err)
		assert.False(t, env.IsError())
		assert.Nil(t, env.First())
	})
}

func TestFunctionExecutor_TimeoutBeatsErrorHandling(t *testing.T) {
	t.Parallel()
	// errorHandling=return must not swallow a timeout: the node still fails.
	cfg := map[string]any{
		"code":          "while true do end",
		"errorHandling": ErrorHandlingReturn,
		"timeout":       30,
	}
	env, err := newFunction(t).Execute(context.Background(), cfg, mainInput(1))
	require.NoError(t, err)
	assert.True(t, env.IsError())
	assert.Contains(t, env.Meta.ErrorMessage, string(types.ErrTimeout))
}

func TestFunctionExecutor_CacheReuse(t *testing.T) {
	t.Parallel()
	fn := newFunction(t, scriptlet.WithResultCache(scriptlet.NewMemoryCache(16)))
	cfg := map[string]any{"code": "return data * 2", "cacheResults": true}

	first, err := fn.Execute(context.Background(), cfg, mainInput(21))
	require.NoError(t, err)
	assert.False(t, first.Meta.Cached)
	assert.Equal(t, float64(42), first.First())

	second, err := fn.Execute(context.Background(), cfg, mainInput(21))
	require.NoError(t, err)
	assert.True(t, second.Meta.Cached, "identical code and input must hit the cache")
	assert.Equal(t, float64(42), second.First())

	// Different input, different fingerprint.
	third, err := fn.Execute(context.Background(), cfg, mainInput(5))
	require.NoError(t, err)
	assert.False(t, third.Meta.Cached)
	assert.Equal(t, float64(10), third.First())
}

func TestFunctionExecutor_ValidateConfig(t *testing.T) {
	t.Parallel()
	fn := newFunction(t)

	err := fn.ValidateConfig(map[string]any{})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))

	require.Error(t, fn.ValidateConfig(map[string]any{"code": "return ((("}))
	assert.NoError(t, fn.ValidateConfig(map[string]any{"code": "return 1"}))
}
