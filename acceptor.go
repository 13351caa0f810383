package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// NewConnectionFunc is invoked with a freshly accept()ed fd and its peer's
// address string whenever Acceptor's listening socket becomes readable.
type NewConnectionFunc func(fd int, peerAddr string)

// Acceptor owns a single listening socket and the Channel that watches it.
// It is driven entirely by its owning EventLoop's thread (spec.md §4.5).
type Acceptor struct {
	loop     *EventLoop
	logger   Logger
	fd       int
	channel  *Channel
	listened bool

	// idleFd is a pre-opened, otherwise-unused /dev/null descriptor held
	// in reserve so that an EMFILE from accept4 (the process is out of
	// file descriptors) can still be cleared: close idleFd to free one
	// slot, accept the pending connection only to immediately drop it,
	// then reopen idleFd. Without this, a level-triggered poller would
	// busy-loop forever reporting the listening socket readable with no
	// way to clear that readiness (ported from muduo's Acceptor).
	idleFd int

	NewConnectionCallback NewConnectionFunc
}

// NewAcceptor creates a socket bound to address and already listening, so
// incoming connections queue in the kernel backlog; nothing is accepted
// until Listen starts watching it, so call Listen once
// NewConnectionCallback is set.
func NewAcceptor(loop *EventLoop, address string, reusePort bool, logger Logger) (*Acceptor, error) {
	family, sa, err := resolveListenAddr(address)
	if err != nil {
		return nil, err
	}
	fd, err := createNonblockingSocket(family)
	if err != nil {
		return nil, err
	}
	if err := setReuseAddr(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := setReusePort(fd, reusePort); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := bindAndListen(fd, sa, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	idleFd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	a := &Acceptor{
		loop:   loop,
		logger: logger,
		fd:     fd,
		idleFd: idleFd,
	}
	a.channel = NewChannel(loop, fd)
	a.channel.SetReadCallback(a.handleRead)
	return a, nil
}

// Listen starts watching the listening socket for incoming connections.
// Must be called on the owning loop's goroutine.
func (a *Acceptor) Listen() {
	a.loop.AssertInLoopThread()
	a.listened = true
	a.channel.EnableReading()
}

// Close stops watching the listening socket and releases its descriptors.
func (a *Acceptor) Close() {
	a.channel.DisableAll()
	a.channel.Remove()
	_ = unix.Close(a.idleFd)
	_ = unix.Close(a.fd)
}

func (a *Acceptor) handleRead(time.Time) {
	a.loop.AssertInLoopThread()

	connFd, peer, err := acceptConn(a.fd)
	if err == nil {
		if a.NewConnectionCallback != nil {
			a.NewConnectionCallback(connFd, sockaddrString(peer))
		} else {
			_ = unix.Close(connFd)
		}
		return
	}

	a.logger.Errorf("acceptor: accept failed: %v", err)
	if err == unix.EMFILE {
		_ = unix.Close(a.idleFd)
		a.idleFd, _, _ = unix.Accept(a.fd)
		_ = unix.Close(a.idleFd)
		a.idleFd, _ = unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	}
}
