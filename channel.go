package reactor

import (
	"time"
	"weak"
)

// channelIndexNew and channelIndexDeleted are poller-private index values a
// Channel starts and ends its life with; see arrayPoller for how the array
// backend uses the full index range.
const (
	channelIndexNew     = -1
	channelIndexDeleted = -2
)

// ReadEventFunc handles a readable (or priority) event, carrying the
// timestamp the owning Poller returned from its wait call.
type ReadEventFunc func(receiveTime time.Time)

// EventFunc handles a writable, close, or error event; it carries no data
// of its own.
type EventFunc func()

// Channel binds one file descriptor to an interest set and a group of
// per-event callbacks, and is the unit the Poller multiplexes. A Channel
// does not own its fd: the fd's lifetime belongs to whichever of
// Acceptor, TcpConnection, or EventLoop (its wakeup fd) created the
// Channel. A Channel may
// only be touched by its owning EventLoop's goroutine.
type Channel struct {
	loop *EventLoop
	fd   int

	interest IOEvent
	revents  IOEvent
	idx      int

	readCallback  ReadEventFunc
	writeCallback EventFunc
	closeCallback EventFunc
	errorCallback EventFunc

	tie          weak.Pointer[TcpConnection]
	tied         bool
	eventHandling bool
	addedToLoop  bool
	logHangup    bool
}

// NewChannel creates a Channel for fd, owned by loop. The Channel starts
// with an empty interest set; it is ignored by the Poller until one of
// EnableReading/EnableWriting is called.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{
		loop:      loop,
		fd:        fd,
		idx:       channelIndexNew,
		logHangup: true,
	}
}

func (c *Channel) Fd() int    { return c.fd }
func (c *Channel) Loop() *EventLoop { return c.loop }

func (c *Channel) SetReadCallback(cb ReadEventFunc)  { c.readCallback = cb }
func (c *Channel) SetWriteCallback(cb EventFunc)     { c.writeCallback = cb }
func (c *Channel) SetCloseCallback(cb EventFunc)     { c.closeCallback = cb }
func (c *Channel) SetErrorCallback(cb EventFunc)     { c.errorCallback = cb }

// DoNotLogHangup suppresses the Warnf a hangup-without-readable event would
// otherwise produce; EventLoop uses this for its wakeup Channel.
func (c *Channel) DoNotLogHangup() { c.logHangup = false }

// Tie weakly links this Channel to owner, so handleEvent drops the event
// instead of invoking a callback on an already-destroyed owner. Per
// SPEC_FULL.md §REDESIGN FLAGS, only Channels whose owner can outlive the
// EventLoop's own teardown (TcpConnection) are tied; the wakeup Channel is
// owned directly by long-lived loop state and is never tied (TimerQueue has
// no Channel).
func (c *Channel) Tie(owner *TcpConnection) {
	c.tie = weak.Make(owner)
	c.tied = true
}

func (c *Channel) isNoneEvent() bool { return c.interest == 0 }

func (c *Channel) EnableReading() {
	c.interest |= EventReadable
	c.update()
}

func (c *Channel) DisableReading() {
	c.interest &^= EventReadable
	c.update()
}

func (c *Channel) EnableWriting() {
	c.interest |= EventWritable
	c.update()
}

func (c *Channel) DisableWriting() {
	c.interest &^= EventWritable
	c.update()
}

func (c *Channel) DisableAll() {
	c.interest = 0
	c.update()
}

func (c *Channel) IsWriting() bool { return c.interest&EventWritable != 0 }
func (c *Channel) IsReading() bool { return c.interest&EventReadable != 0 }

func (c *Channel) index() int     { return c.idx }
func (c *Channel) setIndex(i int) { c.idx = i }

func (c *Channel) update() {
	c.addedToLoop = true
	c.loop.updateChannel(c)
}

// Remove unregisters the Channel from its owning loop's Poller. The
// Channel must have an empty interest set (muduo's "disableAll then
// remove" protocol) and must not currently be mid-dispatch.
func (c *Channel) Remove() {
	c.addedToLoop = false
	c.loop.removeChannel(c)
}

// setRevents is called by the Poller after a successful wait; it is the
// only mutation to revents outside of handleEvent itself.
func (c *Channel) setRevents(ev IOEvent) { c.revents = ev }

// handleEvent interprets revents and invokes at most one callback, per the
// precedence in SPEC_FULL.md §4.2: hangup-without-readable -> close;
// error -> error; readable-or-priority -> read; writable -> write.
func (c *Channel) handleEvent(receiveTime time.Time) {
	if c.tied {
		if owner := c.tie.Value(); owner == nil {
			return
		}
	}
	c.eventHandling = true
	defer func() { c.eventHandling = false }()

	if c.revents&EventHangup != 0 && c.revents&EventReadable == 0 {
		if c.logHangup {
			getLoggerFor(c.loop).Warnf("channel fd=%d hung up", c.fd)
		}
		if c.closeCallback != nil {
			c.closeCallback()
		}
		return
	}
	if c.revents&EventError != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
		return
	}
	if c.revents&(EventReadable|EventPriority) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
		return
	}
	if c.revents&EventWritable != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
