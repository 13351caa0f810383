package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBuffer_AppendRetrieve(t *testing.T) {
	b := NewBuffer()
	require.Equal(t, 0, b.ReadableBytes())
	require.Equal(t, cheapPrepend, b.PrependableBytes())

	b.Append([]byte("hello"))
	assert.Equal(t, 5, b.ReadableBytes())
	assert.Equal(t, "hello", string(b.Peek()))

	b.Retrieve(3)
	assert.Equal(t, 2, b.ReadableBytes())
	assert.Equal(t, "lo", string(b.Peek()))

	assert.Equal(t, "lo", b.RetrieveAllString())
	assert.Equal(t, 0, b.ReadableBytes())
}

func TestBuffer_RetrieveString(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("abcdef"))
	s := b.RetrieveString(3)
	assert.Equal(t, "abc", s)
	assert.Equal(t, "def", string(b.Peek()))
}

func TestBuffer_GrowsWhenOversized(t *testing.T) {
	b := NewBuffer()
	big := make([]byte, initialSize*4)
	for i := range big {
		big[i] = byte(i)
	}
	b.Append(big)
	require.Equal(t, len(big), b.ReadableBytes())
	assert.Equal(t, big, b.Peek())
}

func TestBuffer_ReclaimsPrependableSpaceBeforeGrowing(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("0123456789"))
	b.Retrieve(8)
	require.Equal(t, 2, b.ReadableBytes())

	capBefore := cap(b.buf)
	b.Append(make([]byte, capBefore-cheapPrepend-2))
	// The slide-down path should have reused the existing backing array
	// instead of reallocating, since the already-consumed prefix plus the
	// current writable tail covers the new write.
	assert.Equal(t, capBefore, cap(b.buf))
}

func TestBuffer_Prepend(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("body"))
	b.Prepend([]byte("head-"))
	assert.Equal(t, "head-body", string(b.Peek()))
}

func TestBuffer_FindCRLFAndEOL(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	idx := b.FindCRLF()
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "GET / HTTP/1.1", string(b.Peek()[:idx]))

	eol := b.FindEOL()
	assert.Equal(t, idx+1, eol)
}

func TestBuffer_FindCRLFAbsentReturnsNegativeOne(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("no terminator here"))
	assert.Equal(t, -1, b.FindCRLF())
	assert.Equal(t, -1, b.FindEOL())
}

func TestBuffer_ReadFdReturnsNegativeOneOnError(t *testing.T) {
	b := NewBuffer()
	// An already-closed fd makes Readv fail with EBADF; ReadFd must
	// distinguish this from a clean 0-byte EOF so callers like
	// TcpConnection.handleRead can tell a real error from a close.
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fds[0]))
	require.NoError(t, unix.Close(fds[1]))

	n, err := b.ReadFd(fds[0])
	assert.Equal(t, -1, n)
	assert.Error(t, err)
}
