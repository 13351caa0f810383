package reactor

import (
	"strconv"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// TcpServer accepts connections on one listening address, farms each one
// out to an EventLoopThreadPool IO loop, and tracks every live
// TcpConnection so it can tear them all down on Close (spec.md §4.9).
type TcpServer struct {
	baseLoop *EventLoop
	name     string
	address  string

	acceptor   *Acceptor
	threadPool *EventLoopThreadPool

	logger  Logger
	metrics *Metrics

	highWaterMark int
	threadNum     int

	ConnectionCallback    ConnectionCallback
	MessageCallback       MessageCallback
	WriteCompleteCallback WriteCompleteCallback

	started atomic.Bool

	mu          sync.Mutex
	connections map[string]*TcpConnection
	nextConnID  uint64
}

// NewTcpServer constructs a server bound to address on baseLoop but does
// not yet listen; call Start to begin accepting. baseLoop's goroutine must
// be the one that later calls Start.
func NewTcpServer(baseLoop *EventLoop, name, address string, opts ...ServerOption) (*TcpServer, error) {
	cfg := resolveServerOptions(opts)

	acceptor, err := NewAcceptor(baseLoop, address, cfg.reusePort, cfg.logger)
	if err != nil {
		return nil, err
	}

	s := &TcpServer{
		baseLoop:      baseLoop,
		name:          name,
		address:       address,
		acceptor:      acceptor,
		logger:        cfg.logger,
		metrics:       cfg.metrics,
		highWaterMark: cfg.highWaterMark,
		threadNum:     cfg.threadNum,
		connections:   make(map[string]*TcpConnection),
		nextConnID:    1,
	}
	s.threadPool = NewEventLoopThreadPool(baseLoop, name, WithLoopLogger(cfg.logger), WithLoopMetrics(cfg.metrics))
	acceptor.NewConnectionCallback = s.newConnection
	return s, nil
}

// Start launches the IO thread pool and begins listening. Calling Start
// more than once is a harmless no-op, matching muduo's CAS-gated
// TcpServer::start — a server embedded in a larger app may have Start
// called from more than one place without coordination.
func (s *TcpServer) Start(threadInit ThreadInitFunc) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.threadPool.Start(s.threadNum, threadInit); err != nil {
		s.started.Store(false)
		return err
	}
	s.baseLoop.RunInLoop(s.acceptor.Listen)
	return nil
}

// Close stops accepting new connections and tears down every connection
// currently tracked by the server, then stops the IO thread pool, returning
// the combined teardown errors (if any) from every IO loop. Must be called
// from the base loop's goroutine, matching every other method here that
// touches the connection registry.
func (s *TcpServer) Close() error {
	s.baseLoop.AssertInLoopThread()
	s.acceptor.Close()

	s.mu.Lock()
	conns := make([]*TcpConnection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.connections = make(map[string]*TcpConnection)
	s.mu.Unlock()

	for _, c := range conns {
		c.Loop().RunInLoop(c.connectDestroyed)
	}

	return multierr.Combine(s.threadPool.Stop())
}

// Addr returns the listening socket's bound local address.
func (s *TcpServer) Addr() string { return localAddr(s.acceptor.fd) }

// Connections returns a snapshot of the server's currently tracked
// connections.
func (s *TcpServer) Connections() []*TcpConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*TcpConnection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c)
	}
	return out
}

func (s *TcpServer) newConnection(fd int, peerAddr string) {
	s.baseLoop.AssertInLoopThread()

	ioLoop := s.threadPool.NextLoop()
	connName := s.name + "-" + s.address + "#" + strconv.FormatUint(s.nextConnID, 10)
	s.nextConnID++

	s.logger.Infof("tcpserver[%s]: new connection [%s] from %s", s.name, connName, peerAddr)

	local := localAddr(fd)
	conn := newTcpConnection(ioLoop, connName, fd, local, peerAddr, s.highWaterMark, s.logger, s.metrics)
	conn.ConnectionCallback = s.ConnectionCallback
	conn.MessageCallback = s.MessageCallback
	conn.WriteCompleteCallback = s.WriteCompleteCallback
	conn.closeCallback = s.removeConnection

	s.mu.Lock()
	s.connections[connName] = conn
	s.mu.Unlock()

	ioLoop.RunInLoop(conn.connectEstablished)
}

func (s *TcpServer) removeConnection(conn *TcpConnection) {
	s.baseLoop.RunInLoop(func() { s.removeConnectionInLoop(conn) })
}

func (s *TcpServer) removeConnectionInLoop(conn *TcpConnection) {
	s.baseLoop.AssertInLoopThread()
	s.logger.Infof("tcpserver[%s]: removing connection [%s]", s.name, conn.Name())

	s.mu.Lock()
	delete(s.connections, conn.Name())
	s.mu.Unlock()

	conn.Loop().QueueInLoop(conn.connectDestroyed)
}
