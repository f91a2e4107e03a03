package helpdesk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallLimiter_BlocksInsteadOfRejecting(t *testing.T) {
	t.Parallel()

	l := newCallLimiter(2, 300*time.Millisecond, 5*time.Second, 20*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.wait(ctx))
	require.NoError(t, l.wait(ctx))
	assert.Less(t, time.Since(start), 150*time.Millisecond, "calls within the window must not block")

	// The bucket is empty now: the third call is delayed, not rejected.
	blockedAt := time.Now()
	require.NoError(t, l.wait(ctx))
	assert.GreaterOrEqual(t, time.Since(blockedAt), 100*time.Millisecond)
}

func TestCallLimiter_BoundedWaitSurfacesRateLimited(t *testing.T) {
	t.Parallel()

	l := newCallLimiter(1, 10*time.Second, 100*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.wait(ctx))

	err := l.wait(ctx)
	require.Error(t, err)
	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrRateLimited, apiErr.Kind)
}

func TestCallLimiter_ContextCancellation(t *testing.T) {
	t.Parallel()

	l := newCallLimiter(1, 10*time.Second, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, l.wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	err := l.wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
