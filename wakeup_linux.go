//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// createWakeFd creates an eventfd for cross-thread wakeup notification. The
// same fd serves as both read and write end, unlike the pipe fallback used
// on Darwin.
func createWakeFd() (readFd, writeFd int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func closeWakeFd(readFd, writeFd int) {
	_ = unix.Close(readFd)
}

// writeWake signals the eventfd with its required 8-byte counter increment.
func writeWake(writeFd int) error {
	var one [8]byte
	one[0] = 1
	_, err := unix.Write(writeFd, one[:])
	return err
}

// drainWake consumes every pending wakeup on the eventfd.
func drainWake(readFd int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(readFd, buf[:]); err != nil {
			return
		}
	}
}
