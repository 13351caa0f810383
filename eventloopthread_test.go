package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoopThread_StartLoopRunsInitFuncBeforeReturning(t *testing.T) {
	var initRan bool
	var initLoop *EventLoop

	thread := NewEventLoopThread("test", func(l *EventLoop) {
		initRan = true
		initLoop = l
	}, WithLoopLogger(NoopLogger{}))

	loop, err := thread.StartLoop()
	require.NoError(t, err)
	require.NotNil(t, loop)
	assert.True(t, initRan)
	assert.Same(t, loop, initLoop)

	require.NoError(t, thread.Stop(loop))
}

func TestEventLoopThread_StopJoinsGoroutineAndReturnsRunError(t *testing.T) {
	thread := NewEventLoopThread("test", nil, WithLoopLogger(NoopLogger{}))
	loop, err := thread.StartLoop()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- thread.Stop(loop) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the loop quit")
	}
}

func TestEventLoopThread_StopWithNilLoopIsNoop(t *testing.T) {
	thread := NewEventLoopThread("test", nil)
	assert.NoError(t, thread.Stop(nil))
}
