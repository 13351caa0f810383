package reactor

import "errors"

// Sentinel errors returned by the reactor core. Wrap with fmt.Errorf("%w",
// ...) at call sites that need to attach context; match with errors.Is.
var (
	// ErrFDNotRegistered is returned by the array poll(2) backend's
	// RemoveChannel for a Channel it holds no slot for; the epoll and
	// kqueue backends ignore such a removal and return nil.
	ErrFDNotRegistered = errors.New("reactor: fd not registered with poller")

	// ErrInvalidAddress is returned when a listen address fails to parse
	// or resolve to a usable local TCP endpoint.
	ErrInvalidAddress = errors.New("reactor: invalid listen address")
)

// NotOnLoopThreadError reports a call into a component that asserts
// ownership-thread affinity (spec §5: "every channel, buffer, timer, and
// connection is mutated only on its owning loop's thread") being made from
// the wrong goroutine. The reactor treats this as a fatal usage error: the
// error is never returned, only formatted into a Logger.Fatalf call, mirroring
// muduo's abort-on-assertion-failure behavior (spec §7, "Configuration/usage
// errors ... assertion failures, abort").
type NotOnLoopThreadError struct {
	Component  string
	OwnerGID   uint64
	CallerGID  uint64
}

func (e *NotOnLoopThreadError) Error() string {
	return "reactor: " + e.Component + " called from goroutine " +
		uintToString(e.CallerGID) + ", owned by goroutine " + uintToString(e.OwnerGID)
}

func uintToString(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
