package reactor

import (
	"strconv"

	"go.uber.org/multierr"
)

// EventLoopThreadPool distributes TcpConnections across a fixed set of
// IO EventLoops, round-robin or hash-selected, so a TcpServer doesn't run
// every connection's callbacks on its single base loop (spec.md §4.8).
// With zero threads it degenerates to always returning the base loop —
// muduo's single-threaded mode.
type EventLoopThreadPool struct {
	baseLoop *EventLoop
	name     string
	opts     []EventLoopOption

	started bool
	threads []*EventLoopThread
	loops   []*EventLoop
	next    int
}

// NewEventLoopThreadPool constructs a pool bound to baseLoop; Start must be
// called from baseLoop's own goroutine.
func NewEventLoopThreadPool(baseLoop *EventLoop, name string, opts ...EventLoopOption) *EventLoopThreadPool {
	return &EventLoopThreadPool{baseLoop: baseLoop, name: name, opts: opts}
}

// Start launches numThreads IO loops, running initFunc on each before it
// begins polling. numThreads == 0 is valid and means "use only baseLoop".
func (p *EventLoopThreadPool) Start(numThreads int, initFunc ThreadInitFunc) error {
	p.baseLoop.AssertInLoopThread()
	if p.started {
		return nil
	}
	p.started = true

	for i := 0; i < numThreads; i++ {
		t := NewEventLoopThread(loopThreadName(p.name, i), initFunc, p.opts...)
		loop, err := t.StartLoop()
		if err != nil {
			p.shutdownStarted()
			return err
		}
		p.threads = append(p.threads, t)
		p.loops = append(p.loops, loop)
	}
	if numThreads == 0 && initFunc != nil {
		initFunc(p.baseLoop)
	}
	return nil
}

func (p *EventLoopThreadPool) shutdownStarted() error {
	var err error
	for i, t := range p.threads {
		err = multierr.Append(err, t.Stop(p.loops[i]))
	}
	p.threads = nil
	p.loops = nil
	return err
}

// Stop quits and joins every IO loop thread, returning the combined
// teardown errors (if any) reported by their EventLoop.Run calls. The base
// loop is not owned by the pool and is left running.
func (p *EventLoopThreadPool) Stop() error {
	return p.shutdownStarted()
}

// NextLoop returns the next loop in round-robin order, or baseLoop if the
// pool has no IO threads.
func (p *EventLoopThreadPool) NextLoop() *EventLoop {
	p.baseLoop.AssertInLoopThread()
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	loop := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return loop
}

// LoopForHash deterministically maps hashCode to one of the pool's loops,
// so related connections (e.g. by client IP) can be pinned to the same
// loop. Returns baseLoop if the pool has no IO threads.
func (p *EventLoopThreadPool) LoopForHash(hashCode uint64) *EventLoop {
	p.baseLoop.AssertInLoopThread()
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	return p.loops[hashCode%uint64(len(p.loops))]
}

// AllLoops returns every loop in the pool, or just baseLoop if it has no
// IO threads.
func (p *EventLoopThreadPool) AllLoops() []*EventLoop {
	p.baseLoop.AssertInLoopThread()
	if len(p.loops) == 0 {
		return []*EventLoop{p.baseLoop}
	}
	out := make([]*EventLoop, len(p.loops))
	copy(out, p.loops)
	return out
}

func loopThreadName(base string, i int) string {
	if base == "" {
		base = "reactor-io-"
	}
	return base + strconv.Itoa(i)
}
