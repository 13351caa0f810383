//go:build darwin

package reactor

import (
	"syscall"
)

// createWakeFd opens a self-pipe for cross-thread wakeup notification; kqueue
// has no eventfd equivalent, so a one-byte pipe write/read stands in for it,
// same as muduo's wakeupFd_ on platforms without eventfd.
func createWakeFd() (readFd, writeFd int, err error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return -1, -1, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func closeWakeFd(readFd, writeFd int) {
	_ = syscall.Close(readFd)
	if writeFd != readFd {
		_ = syscall.Close(writeFd)
	}
}

func writeWake(writeFd int) error {
	var one [1]byte
	one[0] = 1
	_, err := syscall.Write(writeFd, one[:])
	return err
}

func drainWake(readFd int) {
	var buf [128]byte
	for {
		if _, err := syscall.Read(readFd, buf[:]); err != nil {
			return
		}
	}
}
