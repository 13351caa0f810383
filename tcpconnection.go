package reactor

import (
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// defaultHighWaterMark is the output-buffer size (in bytes) past which a
// TcpConnection fires its HighWaterMarkCallback, matching muduo's default.
const defaultHighWaterMark = 64 * 1024 * 1024

// ConnState is a TcpConnection's position in its Connecting -> Connected ->
// Disconnecting -> Disconnected lifecycle (spec.md §4.7).
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionCallback is invoked once a TcpConnection reaches Connected and
// again once it reaches Disconnected; inspect Conn.State() to tell which.
type ConnectionCallback func(conn *TcpConnection)

// MessageCallback is invoked whenever new bytes arrive; handlers consume
// what they want from buf via Retrieve/RetrieveAll, leaving the remainder
// for the next call when a message isn't complete yet.
type MessageCallback func(conn *TcpConnection, buf *Buffer, receiveTime time.Time)

// WriteCompleteCallback is posted to the loop once a Send's bytes have all
// reached the kernel: right after a direct write that took every byte, or
// once handleWrite has fully drained the output buffer.
type WriteCompleteCallback func(conn *TcpConnection)

// HighWaterMarkCallback is invoked the moment queued output crosses the
// connection's high-water mark, carrying the new queued byte count.
type HighWaterMarkCallback func(conn *TcpConnection, queuedBytes int)

// CloseCallback is installed by TcpServer to learn when a connection it
// owns has fully torn down, so it can remove its own bookkeeping entry.
type CloseCallback func(conn *TcpConnection)

// TcpConnection wraps one established socket: a Channel, an input Buffer
// accumulated by handleRead, and an output Buffer drained by handleWrite
// when the kernel send buffer is full (spec.md §4.7). Every method except
// Send/Shutdown/ForceClose/ForceCloseWithDelay must run on the owning
// EventLoop's goroutine; those four are the cross-thread-safe entry points.
type TcpConnection struct {
	loop    *EventLoop
	metrics *Metrics
	logger  Logger

	name    string
	fd      int
	channel *Channel

	localAddr string
	peerAddr  string

	state atomic.Int32 // ConnState

	inputBuffer  *Buffer
	outputBuffer *Buffer

	highWaterMark int
	reading       bool

	// context is opaque per-connection state a protocol layer built on top
	// of TcpConnection (e.g. http.Server) can attach in
	// ConnectionCallback and retrieve in MessageCallback, since a
	// TcpConnection itself knows nothing about any framing above raw
	// bytes.
	context any

	ConnectionCallback    ConnectionCallback
	MessageCallback       MessageCallback
	WriteCompleteCallback WriteCompleteCallback
	HighWaterMarkCallback HighWaterMarkCallback
	closeCallback         CloseCallback
}

// newTcpConnection wraps an already-accepted, non-blocking fd. It does not
// register the Channel with the poller; call connectEstablished for that
// once the caller has finished wiring callbacks.
func newTcpConnection(loop *EventLoop, name string, fd int, localAddr, peerAddr string, highWaterMark int, logger Logger, metrics *Metrics) *TcpConnection {
	if highWaterMark <= 0 {
		highWaterMark = defaultHighWaterMark
	}
	c := &TcpConnection{
		loop:          loop,
		metrics:       metrics,
		logger:        logger,
		name:          name,
		fd:            fd,
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		inputBuffer:   NewBuffer(),
		outputBuffer:  NewBuffer(),
		highWaterMark: highWaterMark,
		reading:       true,
	}
	c.state.Store(int32(StateConnecting))
	c.channel = NewChannel(loop, fd)
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	_ = setKeepAlive(fd, true)
	return c
}

func (c *TcpConnection) Name() string      { return c.name }
func (c *TcpConnection) Fd() int           { return c.fd }
func (c *TcpConnection) LocalAddr() string { return c.localAddr }
func (c *TcpConnection) PeerAddr() string  { return c.peerAddr }
func (c *TcpConnection) Loop() *EventLoop  { return c.loop }
func (c *TcpConnection) State() ConnState  { return ConnState(c.state.Load()) }
func (c *TcpConnection) Connected() bool   { return c.State() == StateConnected }

func (c *TcpConnection) setState(s ConnState) { c.state.Store(int32(s)) }

// SetContext attaches opaque state to the connection; only meaningful from
// the owning loop's goroutine since nothing synchronizes access to it.
func (c *TcpConnection) SetContext(ctx any) { c.context = ctx }

// Context returns whatever SetContext last attached, or nil.
func (c *TcpConnection) Context() any { return c.context }

// SetTCPNoDelay toggles Nagle's algorithm on the underlying socket.
func (c *TcpConnection) SetTCPNoDelay(on bool) error { return setTCPNoDelay(c.fd, on) }

// StartRead resumes delivering MessageCallback after StopRead.
func (c *TcpConnection) StartRead() {
	c.loop.RunInLoop(func() {
		if !c.reading || !c.channel.IsReading() {
			c.channel.EnableReading()
			c.reading = true
		}
	})
}

// StopRead suspends MessageCallback delivery without closing the
// connection, applying backpressure by leaving bytes in the kernel buffer.
func (c *TcpConnection) StopRead() {
	c.loop.RunInLoop(func() {
		if c.reading || c.channel.IsReading() {
			c.channel.DisableReading()
			c.reading = false
		}
	})
}

// Send queues data for delivery, writing synchronously when possible and
// falling back to the output buffer (drained by handleWrite) when the
// kernel send buffer is full. Safe to call from any goroutine.
func (c *TcpConnection) Send(data []byte) {
	if c.State() != StateConnected {
		return
	}
	if c.loop.IsLoopThread() {
		c.sendInLoop(data)
	} else {
		cp := append([]byte(nil), data...)
		c.loop.RunInLoop(func() { c.sendInLoop(cp) })
	}
}

// SendString is a convenience wrapper around Send for text protocols.
func (c *TcpConnection) SendString(s string) { c.Send([]byte(s)) }

func (c *TcpConnection) sendInLoop(data []byte) {
	c.loop.AssertInLoopThread()

	if c.State() == StateDisconnected {
		c.logger.Warnf("tcpconnection[%s]: disconnected, give up writing", c.name)
		return
	}

	var written int
	faultError := false

	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.fd, data)
		if n > 0 {
			written = n
			c.metrics.addBytesWritten(n)
		}
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				c.logger.Errorf("tcpconnection[%s]: write: %v", c.name, err)
				if err == unix.EPIPE || err == unix.ECONNRESET {
					faultError = true
				}
			}
		} else if written == len(data) {
			if c.WriteCompleteCallback != nil {
				cb := c.WriteCompleteCallback
				c.loop.QueueInLoop(func() { cb(c) })
			}
			return
		}
	}

	if faultError {
		c.handleClose()
		return
	}

	remaining := data[written:]
	if len(remaining) == 0 {
		return
	}

	oldLen := c.outputBuffer.ReadableBytes()
	newLen := oldLen + len(remaining)
	if newLen >= c.highWaterMark && oldLen < c.highWaterMark {
		c.metrics.highWaterMarkHit()
		if c.HighWaterMarkCallback != nil {
			cb := c.HighWaterMarkCallback
			c.loop.QueueInLoop(func() { cb(c, newLen) })
		}
	}
	c.outputBuffer.Append(remaining)
	if !c.channel.IsWriting() {
		c.channel.EnableWriting()
	}
}

// Shutdown half-closes the connection once pending output has drained: the
// peer sees EOF, but this side keeps reading until the peer closes too.
// Safe to call from any goroutine.
func (c *TcpConnection) Shutdown() {
	if c.State() == StateConnected {
		c.setState(StateDisconnecting)
		c.loop.RunInLoop(c.shutdownInLoop)
	}
}

func (c *TcpConnection) shutdownInLoop() {
	c.loop.AssertInLoopThread()
	if !c.channel.IsWriting() {
		_ = shutdownWrite(c.fd)
	}
}

// ForceClose tears the connection down immediately, dropping any queued
// output. Safe to call from any goroutine.
func (c *TcpConnection) ForceClose() {
	state := c.State()
	if state == StateConnected || state == StateDisconnecting {
		c.setState(StateDisconnecting)
		c.loop.QueueInLoop(c.forceCloseInLoop)
	}
}

// ForceCloseWithDelay behaves like ForceClose but waits delay first, giving
// a final Send a chance to reach the kernel before the fd is torn down.
func (c *TcpConnection) ForceCloseWithDelay(delay time.Duration) {
	state := c.State()
	if state == StateConnected || state == StateDisconnecting {
		c.setState(StateDisconnecting)
		c.loop.RunAfter(delay, c.ForceClose)
	}
}

func (c *TcpConnection) forceCloseInLoop() {
	c.loop.AssertInLoopThread()
	state := c.State()
	if state == StateConnected || state == StateDisconnecting {
		c.handleClose()
	}
}

// connectEstablished transitions a freshly accepted connection into
// Connected, ties its Channel to this connection, and starts reading. Must
// be called exactly once, on the owning loop's goroutine.
func (c *TcpConnection) connectEstablished() {
	c.loop.AssertInLoopThread()
	c.setState(StateConnected)
	c.channel.Tie(c)
	c.channel.EnableReading()
	c.metrics.connectionOpened()
	if c.ConnectionCallback != nil {
		c.ConnectionCallback(c)
	}
}

// connectDestroyed finalizes teardown: removes the Channel from the
// poller and, if handleClose hasn't already run (e.g. the server is
// shutting down the loop out from under a still-connected peer), fires the
// disconnected half of ConnectionCallback.
func (c *TcpConnection) connectDestroyed() {
	c.loop.AssertInLoopThread()
	if c.State() == StateConnected {
		c.setState(StateDisconnected)
		c.channel.DisableAll()
		c.metrics.connectionClosed()
		if c.ConnectionCallback != nil {
			c.ConnectionCallback(c)
		}
	}
	c.channel.Remove()
	_ = unix.Close(c.fd)
}

func (c *TcpConnection) handleRead(receiveTime time.Time) {
	c.loop.AssertInLoopThread()
	n, err := c.inputBuffer.ReadFd(c.fd)
	switch {
	case n > 0:
		c.metrics.addBytesRead(n)
		if c.MessageCallback != nil {
			c.MessageCallback(c, c.inputBuffer, receiveTime)
		}
	case n == 0:
		c.handleClose()
	default:
		c.logger.Errorf("tcpconnection[%s]: read: %v", c.name, err)
		c.handleError()
	}
}

func (c *TcpConnection) handleWrite() {
	c.loop.AssertInLoopThread()
	if !c.channel.IsWriting() {
		return
	}
	n, err := unix.Write(c.fd, c.outputBuffer.Peek())
	if err != nil {
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			c.logger.Errorf("tcpconnection[%s]: write: %v", c.name, err)
			if err == unix.EPIPE || err == unix.ECONNRESET {
				c.handleClose()
			}
		}
		return
	}
	c.metrics.addBytesWritten(n)
	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		if c.WriteCompleteCallback != nil {
			cb := c.WriteCompleteCallback
			c.loop.QueueInLoop(func() { cb(c) })
		}
		if c.State() == StateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

func (c *TcpConnection) handleClose() {
	c.loop.AssertInLoopThread()
	state := c.State()
	if state != StateConnected && state != StateDisconnecting {
		return
	}
	c.setState(StateDisconnected)
	c.channel.DisableAll()
	c.metrics.connectionClosed()

	if c.ConnectionCallback != nil {
		c.ConnectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *TcpConnection) handleError() {
	err := socketError(c.fd)
	c.logger.Errorf("tcpconnection[%s]: socket error: %v", c.name, err)
}
