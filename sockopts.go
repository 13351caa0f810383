package reactor

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// createNonblockingSocket opens a non-blocking, close-on-exec TCP socket,
// matching muduo's sockets::createNonblockingOrDie (SocketsOps.cc) minus
// the "or die": callers here get the error back instead of aborting.
func createNonblockingSocket(family int) (int, error) {
	return unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
}

// resolveListenAddr parses "host:port" into a sockaddr, preferring IPv4 but
// falling back to IPv6 when the host resolves only there.
func resolveListenAddr(address string) (int, unix.Sockaddr, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return 0, nil, ErrInvalidAddress
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return 0, nil, ErrInvalidAddress
	}

	if host == "" {
		return unix.AF_INET, &unix.SockaddrInet4{Port: port}, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return 0, nil, ErrInvalidAddress
		}
		ip = ips[0]
	}
	if v4 := ip.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], v4)
		return unix.AF_INET, sa, nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return 0, nil, ErrInvalidAddress
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], v6)
	return unix.AF_INET6, sa, nil
}

// setReuseAddr toggles SO_REUSEADDR, which muduo always sets on a listening
// socket so a restarted server can rebind a port still in TIME_WAIT.
func setReuseAddr(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

// setReusePort toggles SO_REUSEPORT, letting several listeners (or several
// processes) share one port with kernel-level load balancing of accepts.
func setReusePort(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

// setTCPNoDelay disables Nagle's algorithm, matching muduo's default for
// every accepted TcpConnection: a reactor server is almost always
// latency-sensitive, and buffering sends a few dozen bytes at a time
// behind Nagle would defeat the point of the event loop.
func setTCPNoDelay(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

// setKeepAlive enables the kernel's TCP keepalive probe mechanism so a
// half-open connection (peer vanished without FIN/RST) is eventually
// detected and closed.
func setKeepAlive(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

func bindAndListen(fd int, sa unix.Sockaddr, backlog int) error {
	if err := unix.Bind(fd, sa); err != nil {
		return err
	}
	return unix.Listen(fd, backlog)
}

// acceptConn calls accept4 with SOCK_NONBLOCK|SOCK_CLOEXEC so the accepted
// fd never needs a second syscall round trip to become usable by a
// Channel, and never leaks across a fork+exec.
func acceptConn(listenFd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}

// shutdownWrite half-closes the write side of fd, the syscall behind
// TcpConnection's graceful Shutdown: the peer sees EOF but fd stays
// readable until they close their end too.
func shutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

// socketError reads and clears SO_ERROR, the standard way to discover why
// a non-blocking connect() or an already-established socket's write
// callback reported POLLERR.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

// peerAddr and localAddr format a socket's two endpoints for logging and
// TcpConnection naming; errors are swallowed in favor of an empty string
// since both are informational only.
func peerAddr(fd int) string {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}

func localAddr(fd int) string {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return ""
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
