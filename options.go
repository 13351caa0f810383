package reactor

// loopOptions holds configuration resolved before an EventLoop is constructed.
type loopOptions struct {
	logger     Logger
	metrics    *Metrics
	pollerKind pollerKind
}

// EventLoopOption configures an EventLoop at construction time.
type EventLoopOption interface {
	applyLoop(*loopOptions)
}

type loopOptionFunc func(*loopOptions)

func (f loopOptionFunc) applyLoop(o *loopOptions) { f(o) }

// WithLoopLogger installs a Logger used only by this loop, its Poller, and
// its TimerQueue. Defaults to the package-wide logger (see SetLogger).
func WithLoopLogger(l Logger) EventLoopOption {
	return loopOptionFunc(func(o *loopOptions) { o.logger = l })
}

// WithLoopMetrics attaches a metrics sink to an EventLoop. Nil is safe and
// equivalent to omitting the option.
func WithLoopMetrics(m *Metrics) EventLoopOption {
	return loopOptionFunc(func(o *loopOptions) { o.metrics = m })
}

// withPollerKind forces a specific Poller backend, bypassing environment
// variable detection.
func withPollerKind(k pollerKind) EventLoopOption {
	return loopOptionFunc(func(o *loopOptions) { o.pollerKind = k })
}

func resolveLoopOptions(opts []EventLoopOption) *loopOptions {
	cfg := &loopOptions{
		logger:     getLogger(),
		pollerKind: pollerKindAuto,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyLoop(cfg)
	}
	return cfg
}

// serverOptions holds configuration resolved before a TcpServer starts.
type serverOptions struct {
	reusePort     bool
	threadNum     int
	highWaterMark int
	logger        Logger
	metrics       *Metrics
}

// ServerOption configures a TcpServer.
type ServerOption interface {
	applyServer(*serverOptions)
}

type serverOptionFunc func(*serverOptions)

func (f serverOptionFunc) applyServer(o *serverOptions) { f(o) }

// WithReusePort enables SO_REUSEPORT on the listening socket, allowing
// multiple processes (or multiple TcpServers in this process) to bind the
// same address/port and let the kernel load-balance accepts.
func WithReusePort(enabled bool) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.reusePort = enabled })
}

// WithThreadNum sets the size of the IO EventLoopThreadPool. Zero (the
// default) means every connection is handled on the server's base loop.
func WithThreadNum(n int) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.threadNum = n })
}

// WithServerHighWaterMark overrides the default 64 MiB per-connection
// output high-water mark applied to every accepted TcpConnection.
func WithServerHighWaterMark(bytes int) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.highWaterMark = bytes })
}

// WithServerLogger installs a Logger used by the server, its Acceptor, and
// every TcpConnection it creates.
func WithServerLogger(l Logger) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.logger = l })
}

// WithServerMetrics attaches a metrics sink shared by the server and every
// loop in its pool.
func WithServerMetrics(m *Metrics) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.metrics = m })
}

func resolveServerOptions(opts []ServerOption) *serverOptions {
	cfg := &serverOptions{
		highWaterMark: defaultHighWaterMark,
		logger:        getLogger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyServer(cfg)
	}
	return cfg
}
