package reactor

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runTestServer starts baseLoop.Run() on a goroutine and returns a stop
// function that quits the loop and waits for Run to return.
func runTestServer(t *testing.T, loop *EventLoop) func() {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- loop.Run() }()
	return func() {
		loop.Quit()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("loop did not stop")
		}
	}
}

func TestTcpServer_EchoesAndTracksConnections(t *testing.T) {
	loop := newTestLoop(t)
	server, err := NewTcpServer(loop, "echo", "127.0.0.1:0", WithServerLogger(NoopLogger{}))
	require.NoError(t, err)

	var mu sync.Mutex
	var connected, disconnected int
	server.ConnectionCallback = func(c *TcpConnection) {
		mu.Lock()
		defer mu.Unlock()
		if c.Connected() {
			connected++
		} else {
			disconnected++
		}
	}
	server.MessageCallback = func(c *TcpConnection, buf *Buffer, _ time.Time) {
		data := append([]byte(nil), buf.Peek()...)
		buf.RetrieveAll()
		c.Send(data)
	}

	addr := server.Addr()
	stop := runTestServer(t, loop)
	defer stop()

	require.NoError(t, server.Start(nil))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	require.Eventually(t, func() bool {
		return len(server.Connections()) == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return len(server.Connections()) == 0
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, connected)
	assert.Equal(t, 1, disconnected)
	mu.Unlock()
}

func TestTcpServer_StartIsIdempotent(t *testing.T) {
	loop := newTestLoop(t)
	server, err := NewTcpServer(loop, "idem", "127.0.0.1:0", WithServerLogger(NoopLogger{}))
	require.NoError(t, err)

	stop := runTestServer(t, loop)
	defer stop()

	require.NoError(t, server.Start(nil))
	require.NoError(t, server.Start(nil))
}

func TestTcpServer_CloseTearsDownLiveConnections(t *testing.T) {
	loop := newTestLoop(t)
	server, err := NewTcpServer(loop, "close-test", "127.0.0.1:0", WithServerLogger(NoopLogger{}))
	require.NoError(t, err)

	addr := server.Addr()
	stop := runTestServer(t, loop)
	defer stop()

	require.NoError(t, server.Start(nil))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return len(server.Connections()) == 1
	}, time.Second, 5*time.Millisecond)

	done := make(chan error, 1)
	loop.RunInLoop(func() { done <- server.Close() })

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close never completed")
	}

	require.Eventually(t, func() bool {
		return len(server.Connections()) == 0
	}, time.Second, 5*time.Millisecond)
}
