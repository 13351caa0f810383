package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoopThreadPool_ZeroThreadsDegradesToBaseLoop(t *testing.T) {
	base := newTestLoop(t)
	pool := NewEventLoopThreadPool(base, "pool", WithLoopLogger(NoopLogger{}))

	require.NoError(t, pool.Start(0, nil))
	assert.Same(t, base, pool.NextLoop())
	assert.Same(t, base, pool.LoopForHash(42))
	assert.Equal(t, []*EventLoop{base}, pool.AllLoops())

	require.NoError(t, pool.Stop())
}

func TestEventLoopThreadPool_RoundRobinsAcrossThreads(t *testing.T) {
	base := newTestLoop(t)
	pool := NewEventLoopThreadPool(base, "pool", WithLoopLogger(NoopLogger{}))

	require.NoError(t, pool.Start(3, nil))
	t.Cleanup(func() { _ = pool.Stop() })

	all := pool.AllLoops()
	require.Len(t, all, 3)

	seen := []*EventLoop{pool.NextLoop(), pool.NextLoop(), pool.NextLoop()}
	assert.ElementsMatch(t, all, seen)
	// Fourth call wraps back to the first loop.
	assert.Same(t, seen[0], pool.NextLoop())
}

func TestEventLoopThreadPool_LoopForHashIsDeterministic(t *testing.T) {
	base := newTestLoop(t)
	pool := NewEventLoopThreadPool(base, "pool", WithLoopLogger(NoopLogger{}))

	require.NoError(t, pool.Start(4, nil))
	t.Cleanup(func() { _ = pool.Stop() })

	first := pool.LoopForHash(7)
	second := pool.LoopForHash(7)
	assert.Same(t, first, second)
}

func TestEventLoopThreadPool_StartRunsInitFuncOnEveryThread(t *testing.T) {
	base := newTestLoop(t)
	pool := NewEventLoopThreadPool(base, "pool", WithLoopLogger(NoopLogger{}))

	var initCount int
	require.NoError(t, pool.Start(2, func(*EventLoop) { initCount++ }))
	t.Cleanup(func() { _ = pool.Stop() })

	assert.Equal(t, 2, initCount)
}

func TestEventLoopThreadPool_StartIsIdempotent(t *testing.T) {
	base := newTestLoop(t)
	pool := NewEventLoopThreadPool(base, "pool", WithLoopLogger(NoopLogger{}))

	require.NoError(t, pool.Start(2, nil))
	t.Cleanup(func() { _ = pool.Stop() })
	require.NoError(t, pool.Start(5, nil))

	assert.Len(t, pool.AllLoops(), 2, "a second Start call must not spawn more threads")
}
