//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

const initEventListSize = 16

// epollPoller is the Linux epoll-equivalent backend (spec.md §4.1), ported
// from the teacher's FastPoller (poller_linux.go) but keyed by *Channel
// rather than a direct-indexed callback array, since Channel already owns
// its own interest bits and callbacks.
type epollPoller struct {
	loop     *EventLoop
	epfd     int
	events   []unix.EpollEvent
	channels map[int]*Channel
}

func newNativePoller(loop *EventLoop) (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		loop:     loop,
		epfd:     epfd,
		events:   make([]unix.EpollEvent, initEventListSize),
		channels: make(map[int]*Channel),
	}, nil
}

func (p *epollPoller) Poll(timeoutMs int, activeOut *[]*Channel) (time.Time, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, err
	}
	for i := 0; i < n; i++ {
		ev := &p.events[i]
		ch := p.channels[int(ev.Fd)]
		if ch == nil {
			continue
		}
		ch.setRevents(epollEventsToIOEvent(ev.Events))
		*activeOut = append(*activeOut, ch)
	}
	if n == len(p.events) {
		// Every slot was used on this pass; grow so a larger burst isn't
		// truncated by the buffer size next time.
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return now, nil
}

func (p *epollPoller) UpdateChannel(ch *Channel) error {
	ev := unix.EpollEvent{
		Events: ioEventToEpoll(ch.interest),
		Fd:     int32(ch.fd),
	}
	if ch.index() < 0 {
		if ch.isNoneEvent() {
			// Not yet added and nothing to watch: defer registration
			// until an interest bit is actually set.
			ch.setIndex(channelIndexNew)
			return nil
		}
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, ch.fd, &ev); err != nil {
			return err
		}
		p.channels[ch.fd] = ch
		ch.setIndex(1)
		return nil
	}
	if ch.isNoneEvent() {
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, ch.fd, nil); err != nil {
			return err
		}
		delete(p.channels, ch.fd)
		ch.setIndex(channelIndexNew)
		return nil
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, ch.fd, &ev)
}

func (p *epollPoller) RemoveChannel(ch *Channel) error {
	if ch.index() >= 0 {
		delete(p.channels, ch.fd)
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, ch.fd, nil)
	}
	ch.setIndex(channelIndexDeleted)
	return nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

func ioEventToEpoll(ev IOEvent) uint32 {
	var out uint32
	if ev&EventReadable != 0 {
		out |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if ev&EventWritable != 0 {
		out |= unix.EPOLLOUT
	}
	return out
}

func epollEventsToIOEvent(events uint32) IOEvent {
	var ev IOEvent
	if events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		ev |= EventReadable
	}
	if events&unix.EPOLLPRI != 0 {
		ev |= EventPriority
	}
	if events&unix.EPOLLOUT != 0 {
		ev |= EventWritable
	}
	if events&unix.EPOLLHUP != 0 {
		ev |= EventHangup
	}
	if events&(unix.EPOLLERR|unix.EPOLLNVAL) != 0 {
		ev |= EventError
	}
	return ev
}
