package reactor

import (
	"container/heap"
	"time"

	"go.uber.org/atomic"
)

// TimerID identifies a scheduled timer for later Cancel; it is safe to copy
// and to pass across goroutines, unlike the Functor it guards.
type TimerID struct {
	sequence uint64
}

// timerEntry is one scheduled callback. interval of zero means one-shot.
type timerEntry struct {
	sequence   uint64
	expiration time.Time
	interval   time.Duration
	fn         Functor
	canceled   bool
	heapIndex  int
}

// timerHeap is a min-heap ordered by expiration, breaking ties by sequence
// so timers scheduled for the same instant still fire in registration
// order — the Go equivalent of muduo's std::set<pair<Timestamp,Timer*>>
// deadline-ordered TimerList.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].expiration.Equal(h[j].expiration) {
		return h[i].sequence < h[j].sequence
	}
	return h[i].expiration.Before(h[j].expiration)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

// TimerQueue manages every timer owned by one EventLoop. Its dual-index
// design — the deadline-ordered heap plus the sequence-keyed active map —
// mirrors muduo's TimerQueue::timers_/activeTimers_ pair: the heap drives
// "what fires next", the map drives "is this still live" for Cancel, which
// only ever receives a sequence number, never a heap position.
//
// Unlike muduo, there is no timerfd: EventLoop.Run computes its own Poll
// timeout from nextExpiry and fires expired entries inline each iteration,
// so no kernel timer source or dedicated Channel is needed to wake the
// loop purely for a timer (see DESIGN.md, "Open Question decisions").
type TimerQueue struct {
	loop      *EventLoop
	heap      timerHeap
	active    map[uint64]*timerEntry
	canceling map[uint64]bool
	firing    bool
	nextSeq   atomic.Uint64
	closed    bool
}

func newTimerQueue(loop *EventLoop) *TimerQueue {
	return &TimerQueue{
		loop:      loop,
		active:    make(map[uint64]*timerEntry),
		canceling: make(map[uint64]bool),
	}
}

// Add schedules fn at `when`, repeating every interval thereafter if
// interval > 0. Safe to call from any goroutine; the actual insertion is
// deferred onto the loop thread via RunInLoop.
func (q *TimerQueue) Add(when time.Time, interval time.Duration, fn Functor) TimerID {
	seq := q.nextSeq.Add(1)
	entry := &timerEntry{sequence: seq, expiration: when, interval: interval, fn: fn}
	q.loop.RunInLoop(func() { q.insert(entry) })
	return TimerID{sequence: seq}
}

// Cancel stops id from firing again. A no-op if id already fired (and was
// one-shot) or was already cancelled.
func (q *TimerQueue) Cancel(id TimerID) {
	q.loop.RunInLoop(func() { q.cancelInLoop(id) })
}

func (q *TimerQueue) insert(e *timerEntry) {
	q.active[e.sequence] = e
	heap.Push(&q.heap, e)
}

func (q *TimerQueue) cancelInLoop(id TimerID) {
	if e, ok := q.active[id.sequence]; ok {
		delete(q.active, id.sequence)
		if e.heapIndex >= 0 {
			heap.Remove(&q.heap, e.heapIndex)
		}
		return
	}
	// Not found: either already fired, or is mid-callback right now as a
	// repeating timer about to be re-armed by runExpired. Record it so
	// runExpired knows not to restart it, matching muduo's
	// cancelingTimers_ guard against re-arming a timer cancelled from
	// within its own callback.
	if q.firing {
		q.canceling[id.sequence] = true
	}
}

// nextExpiry returns how long until the soonest timer fires, or a negative
// duration if no timer is scheduled.
func (q *TimerQueue) nextExpiry() time.Duration {
	if len(q.heap) == 0 {
		return -1
	}
	d := time.Until(q.heap[0].expiration)
	if d < 0 {
		return 0
	}
	return d
}

// runExpired is invoked once per EventLoop.Run iteration on the loop
// thread; it fires every timer whose expiration has passed and re-arms
// repeating ones.
func (q *TimerQueue) runExpired(now time.Time, metrics *Metrics) {
	if len(q.heap) == 0 || q.heap[0].expiration.After(now) {
		return
	}

	var expired []*timerEntry
	for len(q.heap) > 0 && !q.heap[0].expiration.After(now) {
		e := heap.Pop(&q.heap).(*timerEntry)
		delete(q.active, e.sequence)
		expired = append(expired, e)
	}

	q.firing = true
	clear(q.canceling)
	for _, e := range expired {
		e.fn()
		metrics.timerFired()
	}
	q.firing = false

	for _, e := range expired {
		if e.interval > 0 && !q.canceling[e.sequence] {
			e.expiration = e.expiration.Add(e.interval)
			if e.expiration.Before(now) {
				// Large clock jump or slow callback: anchor to now
				// instead of firing a storm of already-expired ticks.
				e.expiration = now.Add(e.interval)
			}
			q.insert(e)
		}
	}
}

func (q *TimerQueue) close() {
	q.closed = true
	q.heap = nil
	q.active = nil
	q.canceling = nil
}
