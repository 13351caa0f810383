//go:build darwin

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

const kqueueInitEventListSize = 16

// kqueuePoller is the Darwin/BSD epoll-equivalent backend (spec.md §4.1),
// ported from the teacher's kqueue poller. Read and write interest are
// tracked as separate kevent filters since kqueue has no combined
// readable+writable registration the way epoll does, so UpdateChannel adds
// or deletes each filter independently based on the delta against what was
// last registered.
type kqueuePoller struct {
	loop     *EventLoop
	kq       int
	events   []unix.Kevent_t
	channels map[int]*Channel
	// registered tracks which filters are currently armed per fd, so
	// UpdateChannel only issues EV_ADD/EV_DELETE for the bits that
	// actually changed.
	registered map[int]IOEvent
}

func newNativePoller(loop *EventLoop) (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		loop:       loop,
		kq:         kq,
		events:     make([]unix.Kevent_t, kqueueInitEventListSize),
		channels:   make(map[int]*Channel),
		registered: make(map[int]IOEvent),
	}, nil
}

func (p *kqueuePoller) Poll(timeoutMs int, activeOut *[]*Channel) (time.Time, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(time.Millisecond))
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.events, ts)
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, err
	}
	if n == len(p.events) {
		p.events = make([]unix.Kevent_t, len(p.events)*2)
	}

	seen := make(map[int]IOEvent, n)
	for i := 0; i < n; i++ {
		ev := &p.events[i]
		fd := int(ev.Ident)
		var bits IOEvent
		switch ev.Filter {
		case unix.EVFILT_READ:
			bits = EventReadable
		case unix.EVFILT_WRITE:
			bits = EventWritable
		}
		if ev.Flags&unix.EV_EOF != 0 {
			bits |= EventHangup
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			bits |= EventError
		}
		seen[fd] |= bits
	}
	for fd, bits := range seen {
		ch := p.channels[fd]
		if ch == nil {
			continue
		}
		ch.setRevents(bits)
		*activeOut = append(*activeOut, ch)
	}
	return now, nil
}

func (p *kqueuePoller) UpdateChannel(ch *Channel) error {
	have := p.registered[ch.fd]
	want := ch.interest

	var changes []unix.Kevent_t
	if want&EventReadable != 0 && have&EventReadable == 0 {
		changes = append(changes, kevent(ch.fd, unix.EVFILT_READ, unix.EV_ADD))
	} else if want&EventReadable == 0 && have&EventReadable != 0 {
		changes = append(changes, kevent(ch.fd, unix.EVFILT_READ, unix.EV_DELETE))
	}
	if want&EventWritable != 0 && have&EventWritable == 0 {
		changes = append(changes, kevent(ch.fd, unix.EVFILT_WRITE, unix.EV_ADD))
	} else if want&EventWritable == 0 && have&EventWritable != 0 {
		changes = append(changes, kevent(ch.fd, unix.EVFILT_WRITE, unix.EV_DELETE))
	}

	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			return err
		}
	}

	p.registered[ch.fd] = want
	p.channels[ch.fd] = ch
	if ch.index() < 0 {
		ch.setIndex(1)
	}
	if want == 0 {
		delete(p.channels, ch.fd)
		delete(p.registered, ch.fd)
	}
	return nil
}

func (p *kqueuePoller) RemoveChannel(ch *Channel) error {
	if have := p.registered[ch.fd]; have != 0 {
		var changes []unix.Kevent_t
		if have&EventReadable != 0 {
			changes = append(changes, kevent(ch.fd, unix.EVFILT_READ, unix.EV_DELETE))
		}
		if have&EventWritable != 0 {
			changes = append(changes, kevent(ch.fd, unix.EVFILT_WRITE, unix.EV_DELETE))
		}
		_, _ = unix.Kevent(p.kq, changes, nil, nil)
	}
	delete(p.channels, ch.fd)
	delete(p.registered, ch.fd)
	ch.setIndex(channelIndexDeleted)
	return nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}

func kevent(fd int, filter int16, flags uint16) unix.Kevent_t {
	return unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
}
