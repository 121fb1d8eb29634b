package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowgrid/types"
)

func TestWithTimeout_FastFunctionPassesThrough(t *testing.T) {
	t.Parallel()
	got, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestWithTimeout_NeverSettlingFunction(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	defer close(block)

	start := time.Now()
	_, err := WithTimeout(context.Background(), 50*time.Millisecond, func(ctx context.Context) (string, error) {
		<-block
		return "late", nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond, "guard must return promptly after the deadline")
}

// A settlement after the deadline must be silently discarded: the goroutine
// writes to a buffered channel and never blocks.
func TestWithTimeout_LateSettlementHasNoEffect(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})

	_, err := WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-release
		return 7, nil
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))

	// Let the abandoned goroutine settle; nothing may panic or block.
	close(release)
	time.Sleep(30 * time.Millisecond)
}

func TestWithTimeout_ZeroDurationRunsDirect(t *testing.T) {
	t.Parallel()
	got, err := WithTimeout(context.Background(), 0, func(ctx context.Context) (string, error) {
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		return "direct", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", got)
}

func TestWithTimeout_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	defer close(block)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := WithTimeout(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-block
		return 0, nil
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrExecution, types.GetErrorCode(err))
}

func TestWithTimeout_InnerContextCarriesDeadline(t *testing.T) {
	t.Parallel()
	_, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (struct{}, error) {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 100*time.Millisecond)
		return struct{}{}, nil
	})
	require.NoError(t, err)
}
