package http

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/loopcore/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTestLoop(t *testing.T, loop *reactor.EventLoop) func() {
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

func TestServer_DefaultHandlerAnswers404(t *testing.T) {
	loop, err := reactor.NewEventLoop(reactor.WithLoopLogger(reactor.NoopLogger{}))
	require.NoError(t, err)

	srv, err := NewServer(loop, "http-test", "127.0.0.1:0", reactor.WithServerLogger(reactor.NoopLogger{}))
	require.NoError(t, err)

	stop := runTestLoop(t, loop)
	defer stop()
	require.NoError(t, srv.Start(nil))

	conn, err := net.Dial("tcp", srv.tcp.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /missing HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n", status)
}

func TestServer_CustomHandlerAnswersAndKeepsAlive(t *testing.T) {
	loop, err := reactor.NewEventLoop(reactor.WithLoopLogger(reactor.NoopLogger{}))
	require.NoError(t, err)

	srv, err := NewServer(loop, "http-test", "127.0.0.1:0", reactor.WithServerLogger(reactor.NoopLogger{}))
	require.NoError(t, err)
	srv.SetHandler(func(req *Request, resp *Response) {
		resp.SetStatusCode(StatusOK)
		resp.SetStatusMessage("OK")
		resp.SetBody([]byte("hi " + req.Path()))
	})

	stop := runTestLoop(t, loop)
	defer stop()
	require.NoError(t, srv.Start(nil))

	conn, err := net.Dial("tcp", srv.tcp.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /world HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", status)

	// Consume the rest of the first response (headers, blank line, body)
	// so the next line read is the second response's status line.
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}
	body := make([]byte, len("hi /world"))
	_, err = io.ReadFull(reader, body)
	require.NoError(t, err)
	assert.Equal(t, "hi /world", string(body))

	// Keep-Alive: the connection must still accept a second request.
	_, err = conn.Write([]byte("GET /again HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	status2, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", status2)
}

func TestServer_MalformedRequestGets400AndCloses(t *testing.T) {
	loop, err := reactor.NewEventLoop(reactor.WithLoopLogger(reactor.NoopLogger{}))
	require.NoError(t, err)

	srv, err := NewServer(loop, "http-test", "127.0.0.1:0", reactor.WithServerLogger(reactor.NoopLogger{}))
	require.NoError(t, err)

	stop := runTestLoop(t, loop)
	defer stop()
	require.NoError(t, srv.Start(nil))

	conn, err := net.Dial("tcp", srv.tcp.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("NOT A REQUEST\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 400 Bad Request\r\n", status)
}
