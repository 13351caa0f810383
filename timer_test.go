package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerQueue_NextExpiryEmpty(t *testing.T) {
	loop := newTestLoop(t)
	q := newTimerQueue(loop)
	assert.Equal(t, time.Duration(-1), q.nextExpiry())
}

func TestTimerQueue_OrdersByExpirationThenSequence(t *testing.T) {
	loop := newTestLoop(t)
	q := newTimerQueue(loop)

	now := time.Now()
	var fired []int

	e3 := &timerEntry{sequence: 3, expiration: now.Add(30 * time.Millisecond), fn: func() { fired = append(fired, 3) }}
	e1 := &timerEntry{sequence: 1, expiration: now.Add(10 * time.Millisecond), fn: func() { fired = append(fired, 1) }}
	e2 := &timerEntry{sequence: 2, expiration: now.Add(20 * time.Millisecond), fn: func() { fired = append(fired, 2) }}
	q.insert(e3)
	q.insert(e1)
	q.insert(e2)

	require.Equal(t, 3, len(q.heap))
	assert.Equal(t, uint64(1), q.heap[0].sequence)

	q.runExpired(now.Add(25*time.Millisecond), nil)
	assert.Equal(t, []int{1, 2}, fired)
	assert.Equal(t, 1, len(q.heap))
}

func TestTimerQueue_SameExpirationBreaksTieBySequence(t *testing.T) {
	loop := newTestLoop(t)
	q := newTimerQueue(loop)

	now := time.Now()
	var fired []int
	later := &timerEntry{sequence: 5, expiration: now, fn: func() { fired = append(fired, 5) }}
	earlier := &timerEntry{sequence: 2, expiration: now, fn: func() { fired = append(fired, 2) }}
	q.insert(later)
	q.insert(earlier)

	q.runExpired(now, nil)
	assert.Equal(t, []int{2, 5}, fired)
}

func TestTimerQueue_CancelBeforeFiring(t *testing.T) {
	loop := newTestLoop(t)
	q := newTimerQueue(loop)

	now := time.Now()
	fired := false
	e := &timerEntry{sequence: 1, expiration: now.Add(time.Millisecond), fn: func() { fired = true }}
	q.insert(e)

	q.cancelInLoop(TimerID{sequence: 1})
	require.Equal(t, 0, len(q.heap))

	q.runExpired(now.Add(time.Hour), nil)
	assert.False(t, fired)
}

func TestTimerQueue_CancelFromWithinOwnCallbackSuppressesRearm(t *testing.T) {
	loop := newTestLoop(t)
	q := newTimerQueue(loop)

	now := time.Now()
	var id TimerID
	fireCount := 0
	e := &timerEntry{sequence: 7, expiration: now, interval: time.Millisecond}
	e.fn = func() {
		fireCount++
		q.cancelInLoop(id)
	}
	id = TimerID{sequence: 7}
	q.insert(e)

	q.runExpired(now, nil)
	assert.Equal(t, 1, fireCount)
	assert.Equal(t, 0, len(q.heap), "a timer cancelled from its own callback must not be re-armed")
}

func TestTimerQueue_RepeatingTimerReArmsAfterFiring(t *testing.T) {
	loop := newTestLoop(t)
	q := newTimerQueue(loop)

	now := time.Now()
	fireCount := 0
	e := &timerEntry{sequence: 1, expiration: now, interval: 10 * time.Millisecond, fn: func() { fireCount++ }}
	q.insert(e)

	q.runExpired(now, nil)
	assert.Equal(t, 1, fireCount)
	require.Equal(t, 1, len(q.heap))
	assert.Equal(t, now.Add(10*time.Millisecond), q.heap[0].expiration)
}

func TestTimerQueue_RepeatingTimerAnchorsToNowAfterClockJump(t *testing.T) {
	loop := newTestLoop(t)
	q := newTimerQueue(loop)

	now := time.Now()
	e := &timerEntry{sequence: 1, expiration: now, interval: time.Millisecond}
	e.fn = func() {}
	q.insert(e)

	far := now.Add(time.Hour)
	q.runExpired(far, nil)
	require.Equal(t, 1, len(q.heap))
	assert.Equal(t, far.Add(time.Millisecond), q.heap[0].expiration)
}
