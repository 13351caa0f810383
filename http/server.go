package http

import (
	"time"

	"github.com/loopcore/reactor"
)

// Handler produces a response for a fully parsed request. The default
// Handler answers every request with 404 Not Found, matching muduo's
// detail::defaultHttpCallback.
type Handler func(req *Request, resp *Response)

func defaultHandler(_ *Request, resp *Response) {
	resp.SetStatusCode(StatusNotFound)
	resp.SetStatusMessage("Not Found")
	resp.SetCloseConnection(true)
}

// Server wraps a reactor.TcpServer, feeding every connection's bytes
// through a Context and dispatching fully parsed requests to Handler —
// ported from muduo's HttpServer.
type Server struct {
	tcp     *reactor.TcpServer
	handler Handler
	logger  reactor.Logger
}

// NewServer constructs an HTTP server bound to address on loop. Start must
// be called from loop's own goroutine.
func NewServer(loop *reactor.EventLoop, name, address string, opts ...reactor.ServerOption) (*Server, error) {
	tcp, err := reactor.NewTcpServer(loop, name, address, opts...)
	if err != nil {
		return nil, err
	}
	s := &Server{tcp: tcp, handler: defaultHandler, logger: reactor.NoopLogger{}}
	tcp.ConnectionCallback = s.onConnection
	tcp.MessageCallback = s.onMessage
	return s, nil
}

// SetHandler installs the request handler; a nil argument is ignored.
func (s *Server) SetHandler(h Handler) {
	if h != nil {
		s.handler = h
	}
}

// SetLogger installs a Logger the server uses for its own diagnostics
// (currently just the startup line), independent of the underlying
// TcpServer's Logger.
func (s *Server) SetLogger(l reactor.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Start begins listening and accepting connections.
func (s *Server) Start(threadInit reactor.ThreadInitFunc) error {
	s.logger.Warnf("httpserver: starting")
	return s.tcp.Start(threadInit)
}

// Close tears down every connection and stops the IO thread pool.
func (s *Server) Close() error { return s.tcp.Close() }

func (s *Server) onConnection(conn *reactor.TcpConnection) {
	if conn.Connected() {
		conn.SetContext(&Context{})
	}
}

func (s *Server) onMessage(conn *reactor.TcpConnection, buf *reactor.Buffer, receiveTime time.Time) {
	ctx, ok := conn.Context().(*Context)
	if !ok || ctx == nil {
		return
	}

	if !ctx.ParseRequest(buf, receiveTime) {
		conn.SendString("HTTP/1.1 400 Bad Request\r\n\r\n")
		conn.Shutdown()
		return
	}

	if ctx.GotAll() {
		s.onRequest(conn, ctx.Request())
		ctx.Reset()
	}
}

func (s *Server) onRequest(conn *reactor.TcpConnection, req *Request) {
	connHeader := req.Header("Connection")
	shouldClose := connHeader == "close" ||
		(req.Version() == VersionHTTP10 && connHeader != "Keep-Alive")

	resp := NewResponse(shouldClose)
	s.handler(req, resp)

	out := reactor.NewBuffer()
	resp.AppendToBuffer(out)
	conn.Send(out.Peek())

	if resp.CloseConnection() {
		conn.Shutdown()
	}
}
