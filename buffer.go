package reactor

import (
	"bytes"

	"golang.org/x/sys/unix"
)

const (
	// cheapPrepend reserves space at the front of every Buffer so headers
	// (e.g. a length prefix) can be prepended without shifting the body,
	// matching muduo's Buffer::kCheapPrepend.
	cheapPrepend = 8
	initialSize  = 1024
)

// Buffer is a non-circular, auto-growing byte buffer with three cursors:
// a cheap-prepend region, readable bytes, and writable space, matching
// muduo's Buffer layout (spec.md §4.6). It is not safe for concurrent use;
// every Buffer belongs to exactly one TcpConnection's loop thread.
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

// NewBuffer returns an empty Buffer with the standard cheap-prepend
// reserve and initial capacity.
func NewBuffer() *Buffer {
	b := &Buffer{buf: make([]byte, cheapPrepend+initialSize)}
	b.readerIndex = cheapPrepend
	b.writerIndex = cheapPrepend
	return b
}

func (b *Buffer) ReadableBytes() int { return b.writerIndex - b.readerIndex }
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writerIndex }
func (b *Buffer) PrependableBytes() int { return b.readerIndex }

// Peek returns the readable region without consuming it. The slice aliases
// the Buffer's storage and is invalidated by the next mutating call.
func (b *Buffer) Peek() []byte { return b.buf[b.readerIndex:b.writerIndex] }

// Retrieve consumes n bytes from the front of the readable region.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.readerIndex += n
		return
	}
	b.RetrieveAll()
}

// RetrieveAll consumes every readable byte, resetting both cursors to
// cheapPrepend (the end of the reserved prepend area) so subsequent writes reuse the buffer's
// existing capacity instead of growing it.
func (b *Buffer) RetrieveAll() {
	b.readerIndex = cheapPrepend
	b.writerIndex = cheapPrepend
}

// RetrieveAllString consumes and returns every readable byte as a string.
func (b *Buffer) RetrieveAllString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// RetrieveString consumes and returns n bytes as a string.
func (b *Buffer) RetrieveString(n int) string {
	s := string(b.buf[b.readerIndex : b.readerIndex+n])
	b.Retrieve(n)
	return s
}

// Append copies data onto the end of the readable region, growing the
// buffer if necessary.
func (b *Buffer) Append(data []byte) {
	b.ensureWritable(len(data))
	n := copy(b.buf[b.writerIndex:], data)
	b.writerIndex += n
}

// Prepend writes data immediately before the current readable region; the
// caller must not exceed PrependableBytes().
func (b *Buffer) Prepend(data []byte) {
	b.readerIndex -= len(data)
	copy(b.buf[b.readerIndex:], data)
}

func (b *Buffer) ensureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	if b.PrependableBytes()-cheapPrepend+b.WritableBytes() >= n {
		// Enough total slack once the already-consumed prefix is
		// reclaimed: slide the readable bytes down to kCheapPrepend
		// instead of growing the backing array.
		readable := b.ReadableBytes()
		copy(b.buf[cheapPrepend:], b.buf[b.readerIndex:b.writerIndex])
		b.readerIndex = cheapPrepend
		b.writerIndex = cheapPrepend + readable
		return
	}
	grown := make([]byte, b.writerIndex+n)
	copy(grown, b.buf[:b.writerIndex])
	b.buf = grown
}

// ReadFd performs a scatter-read from fd directly into the buffer's
// writable tail, spilling any overflow into a 64 KiB on-stack scratch
// buffer that is then appended — so a connection that briefly bursts more
// data than its buffer currently holds doesn't force every idle
// connection's buffer to carry 64 KiB of headroom permanently (spec.md
// §4.6, ported from Buffer::readFd). Returns -1 on error so callers can
// tell a real read failure apart from a clean 0-byte EOF.
func (b *Buffer) ReadFd(fd int) (int, error) {
	var extrabuf [65536]byte
	writable := b.WritableBytes()
	if writable == 0 {
		b.ensureWritable(1)
		writable = b.WritableBytes()
	}

	iov := make([]unix.Iovec, 0, 2)
	first := unix.Iovec{Base: &b.buf[b.writerIndex]}
	first.SetLen(writable)
	iov = append(iov, first)
	if writable < len(extrabuf) {
		second := unix.Iovec{Base: &extrabuf[0]}
		second.SetLen(len(extrabuf))
		iov = append(iov, second)
	}

	n, err := unix.Readv(fd, iov)
	if err != nil {
		return -1, err
	}
	if n <= 0 {
		return n, nil
	}
	if n <= writable {
		b.writerIndex += n
	} else {
		b.writerIndex = len(b.buf)
		b.Append(extrabuf[:n-writable])
	}
	return n, nil
}

// FindCRLF returns the index (relative to the readable region) of the
// first "\r\n", or -1 if not present.
func (b *Buffer) FindCRLF() int {
	idx := bytes.Index(b.Peek(), []byte("\r\n"))
	return idx
}

// FindEOL returns the index (relative to the readable region) of the
// first '\n', or -1 if not present — used by line-oriented protocols that
// tolerate a bare LF.
func (b *Buffer) FindEOL() int {
	return bytes.IndexByte(b.Peek(), '\n')
}
