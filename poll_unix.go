//go:build unix

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// arrayPoller is the array-based poll(2) backend (spec.md §4.1's "array
// poll" requirement), selected via REACTOR_USE_POLL=1. It keeps a dense
// []unix.PollFd parallel to a []*Channel, with each Channel's index field
// pointing at its slot for O(1) updates — ported from muduo's PollPoller,
// which negates a Channel's fd to mark it temporarily inactive rather than
// compacting the array on every interest-bit change.
type arrayPoller struct {
	loop     *EventLoop
	pollfds  []unix.PollFd
	channels map[int]*Channel
}

func newArrayPoller(loop *EventLoop) *arrayPoller {
	return &arrayPoller{
		loop:     loop,
		channels: make(map[int]*Channel),
	}
}

func (p *arrayPoller) Poll(timeoutMs int, activeOut *[]*Channel) (time.Time, error) {
	n, err := unix.Poll(p.pollfds, timeoutMs)
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, err
	}
	for i := 0; i < len(p.pollfds) && n > 0; i++ {
		pfd := &p.pollfds[i]
		if pfd.Revents == 0 {
			continue
		}
		n--
		ch := p.channels[int(pfd.Fd)]
		if ch == nil {
			continue
		}
		ch.setRevents(pollEventsToIOEvent(pfd.Revents))
		*activeOut = append(*activeOut, ch)
	}
	return now, nil
}

func (p *arrayPoller) UpdateChannel(ch *Channel) error {
	if ch.index() < 0 {
		p.channels[ch.fd] = ch
		p.pollfds = append(p.pollfds, unix.PollFd{
			Fd:     int32(ch.fd),
			Events: ioEventToPollEvents(ch.interest),
		})
		ch.setIndex(len(p.pollfds) - 1)
		return nil
	}
	idx := ch.index()
	pfd := &p.pollfds[idx]
	pfd.Events = ioEventToPollEvents(ch.interest)
	pfd.Revents = 0
	if ch.isNoneEvent() {
		// Negate the fd to mark the slot inactive without reshuffling the
		// array; a fully idle Channel is still remembered until removed.
		pfd.Fd = -int32(ch.fd) - 1
	} else {
		pfd.Fd = int32(ch.fd)
	}
	return nil
}

func (p *arrayPoller) RemoveChannel(ch *Channel) error {
	idx := ch.index()
	if idx < 0 || idx >= len(p.pollfds) {
		return ErrFDNotRegistered
	}
	delete(p.channels, ch.fd)
	last := len(p.pollfds) - 1
	if idx != last {
		p.pollfds[idx] = p.pollfds[last]
		movedFd := int(p.pollfds[idx].Fd)
		if movedFd < 0 {
			movedFd = -movedFd - 1
		}
		if moved := p.channels[movedFd]; moved != nil {
			moved.setIndex(idx)
		}
	}
	p.pollfds = p.pollfds[:last]
	ch.setIndex(channelIndexDeleted)
	return nil
}

func (p *arrayPoller) Close() error { return nil }

func ioEventToPollEvents(ev IOEvent) int16 {
	var out int16
	if ev&EventReadable != 0 {
		out |= unix.POLLIN | unix.POLLPRI
	}
	if ev&EventWritable != 0 {
		out |= unix.POLLOUT
	}
	return out
}

func pollEventsToIOEvent(revents int16) IOEvent {
	var ev IOEvent
	if revents&(unix.POLLIN|unix.POLLPRI) != 0 {
		ev |= EventReadable
	}
	if revents&unix.POLLPRI != 0 {
		ev |= EventPriority
	}
	if revents&unix.POLLOUT != 0 {
		ev |= EventWritable
	}
	if revents&unix.POLLHUP != 0 {
		ev |= EventHangup
	}
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		ev |= EventError
	}
	return ev
}
