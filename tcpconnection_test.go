package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newTestConnPair returns a connected, non-blocking fd pair plus the
// TcpConnection wrapping one end; the other end is a bare fd the test reads
// from or writes to directly, standing in for a remote peer.
func newTestConnPair(t *testing.T) (*TcpConnection, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))

	loop := newTestLoop(t)
	conn := newTcpConnection(loop, "test-conn", fds[0], "local", "peer", 0, NoopLogger{}, nil)
	t.Cleanup(func() { _ = unix.Close(fds[1]) })
	return conn, fds[1]
}

func TestTcpConnection_ConnectEstablishedFiresCallback(t *testing.T) {
	conn, _ := newTestConnPair(t)

	var seen ConnState
	conn.ConnectionCallback = func(c *TcpConnection) { seen = c.State() }

	conn.connectEstablished()
	assert.Equal(t, StateConnected, conn.State())
	assert.Equal(t, StateConnected, seen)
	assert.True(t, conn.Connected())
}

func TestTcpConnection_HandleReadDeliversBytes(t *testing.T) {
	conn, peerFd := newTestConnPair(t)
	conn.connectEstablished()

	var gotMsg string
	conn.MessageCallback = func(_ *TcpConnection, buf *Buffer, _ time.Time) {
		gotMsg = buf.RetrieveAllString()
	}

	_, err := unix.Write(peerFd, []byte("hello"))
	require.NoError(t, err)

	conn.handleRead(time.Now())
	assert.Equal(t, "hello", gotMsg)
}

func TestTcpConnection_HandleReadEOFClosesConnection(t *testing.T) {
	conn, peerFd := newTestConnPair(t)
	conn.connectEstablished()

	closed := false
	conn.closeCallback = func(*TcpConnection) { closed = true }

	require.NoError(t, unix.Close(peerFd))

	conn.handleRead(time.Now())
	assert.Equal(t, StateDisconnected, conn.State())
	assert.True(t, closed)
}

func TestTcpConnection_SendWritesSynchronouslyWhenKernelBufferHasRoom(t *testing.T) {
	conn, peerFd := newTestConnPair(t)
	conn.connectEstablished()

	conn.sendInLoop([]byte("ping"))
	assert.False(t, conn.channel.IsWriting(), "a fully-accepted write should not arm the write Channel")

	buf := make([]byte, 16)
	n, err := unix.Read(peerFd, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestTcpConnection_SendAfterDisconnectIsANoop(t *testing.T) {
	conn, _ := newTestConnPair(t)
	conn.connectEstablished()
	conn.handleClose()
	require.Equal(t, StateDisconnected, conn.State())

	conn.Send([]byte("dropped"))
	assert.Equal(t, 0, conn.outputBuffer.ReadableBytes())
}

func TestTcpConnection_ShutdownHalfClosesOncePendingOutputDrains(t *testing.T) {
	conn, peerFd := newTestConnPair(t)
	conn.connectEstablished()

	// Shutdown defers the actual half-close to the loop thread via
	// RunInLoop; since Run is never started here, drive shutdownInLoop
	// directly to exercise the half-close itself.
	conn.setState(StateDisconnecting)
	conn.shutdownInLoop()
	assert.Equal(t, StateDisconnecting, conn.State())

	buf := make([]byte, 16)
	n, err := unix.Read(peerFd, buf)
	assert.Equal(t, 0, n)
	assert.NoError(t, err)
}

func TestTcpConnection_HighWaterMarkCallbackFiresPastThreshold(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() { _ = unix.Close(fds[1]) })

	loop := newTestLoop(t)
	conn := newTcpConnection(loop, "test-conn", fds[0], "local", "peer", 8, NoopLogger{}, nil)
	conn.connectEstablished()

	// Arm write interest first so sendInLoop skips the direct write and
	// queues the data in outputBuffer instead of writing straight through.
	conn.channel.EnableWriting()

	hit := false
	conn.HighWaterMarkCallback = func(_ *TcpConnection, queued int) {
		hit = true
		assert.GreaterOrEqual(t, queued, 8)
	}
	conn.sendInLoop(make([]byte, 16))
	// The callback is posted via QueueInLoop; Run is never started here, so
	// drain the pending functors by hand.
	conn.loop.doPendingFunctors()
	assert.True(t, hit)
}

func TestTcpConnection_Context(t *testing.T) {
	conn, _ := newTestConnPair(t)
	assert.Nil(t, conn.Context())
	conn.SetContext("state")
	assert.Equal(t, "state", conn.Context())
}
