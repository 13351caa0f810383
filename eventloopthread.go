package reactor

// ThreadInitFunc runs on a newly started EventLoop's goroutine before Run
// begins polling, letting callers wire per-loop state (timers, metrics,
// connection registries) that must be touched only from that loop thread.
type ThreadInitFunc func(loop *EventLoop)

// EventLoopThread owns exactly one goroutine running exactly one EventLoop,
// handing the constructed *EventLoop back to StartLoop's caller once it's
// ready to accept work — the Go analogue of muduo's EventLoopThread, which
// uses a mutex/condvar pair to publish the loop pointer across threads. A
// channel replaces the condvar: closer to idiomatic Go and race-free by
// construction.
type EventLoopThread struct {
	name     string
	initFunc ThreadInitFunc
	opts     []EventLoopOption

	ready  chan *EventLoop
	done   chan struct{}
	runErr error
}

// NewEventLoopThread constructs a thread wrapper but does not start it.
func NewEventLoopThread(name string, initFunc ThreadInitFunc, opts ...EventLoopOption) *EventLoopThread {
	return &EventLoopThread{
		name:     name,
		initFunc: initFunc,
		opts:     opts,
		ready:    make(chan *EventLoop, 1),
		done:     make(chan struct{}),
	}
}

// StartLoop spawns the goroutine and blocks until its EventLoop exists and
// initFunc (if any) has run, then returns it. Must be called at most once.
func (t *EventLoopThread) StartLoop() (*EventLoop, error) {
	errCh := make(chan error, 1)
	go func() {
		loop, err := NewEventLoop(t.opts...)
		if err != nil {
			errCh <- err
			close(t.ready)
			return
		}
		errCh <- nil
		if t.initFunc != nil {
			t.initFunc(loop)
		}
		t.ready <- loop
		t.runErr = loop.Run()
		close(t.done)
	}()
	if err := <-errCh; err != nil {
		return nil, err
	}
	return <-t.ready, nil
}

// Stop asks the owned loop to quit, waits for its goroutine to exit, and
// returns any teardown error Run observed.
func (t *EventLoopThread) Stop(loop *EventLoop) error {
	if loop == nil {
		return nil
	}
	loop.Quit()
	<-t.done
	return t.runErr
}
