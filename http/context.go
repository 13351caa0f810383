package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/loopcore/reactor"
)

type parseState int

const (
	stateExpectRequestLine parseState = iota
	stateExpectHeaders
	stateExpectBody
	stateGotAll
)

// Context is the per-connection byte-scanning state machine that
// incrementally assembles a Request from whatever's currently in a
// TcpConnection's input Buffer, one call per MessageCallback invocation —
// ported from muduo's HttpContext::parseRequest. A Server stores one
// Context per connection via TcpConnection.SetContext.
type Context struct {
	state         parseState
	request       Request
	bodyRemaining int
}

// GotAll reports whether the current request has been fully parsed and is
// ready for a Handler.
func (c *Context) GotAll() bool { return c.state == stateGotAll }

// Request returns the request accumulated so far; only meaningful once
// GotAll reports true.
func (c *Context) Request() *Request { return &c.request }

// Reset prepares the Context for the next request on a keep-alive
// connection.
func (c *Context) Reset() {
	c.state = stateExpectRequestLine
	c.bodyRemaining = 0
	c.request.reset()
}

// ParseRequest consumes as much of buf as forms complete lines (and, once
// headers are done, a Content-Length body), returning false the moment the
// request line is malformed; a header line without a colon is skipped. A false
// return means the connection should be sent a 400 and closed; it does not
// mean parsing should be retried with more data.
func (c *Context) ParseRequest(buf *reactor.Buffer, receiveTime time.Time) bool {
	ok := true
	hasMore := true
	for hasMore {
		switch c.state {
		case stateExpectRequestLine:
			idx := buf.FindCRLF()
			if idx < 0 {
				hasMore = false
				break
			}
			line := string(buf.Peek()[:idx])
			ok = c.processRequestLine(line)
			if ok {
				c.request.setReceiveTime(receiveTime)
				buf.Retrieve(idx + 2)
				c.state = stateExpectHeaders
			} else {
				hasMore = false
			}
		case stateExpectHeaders:
			idx := buf.FindCRLF()
			if idx < 0 {
				hasMore = false
				break
			}
			line := string(buf.Peek()[:idx])
			buf.Retrieve(idx + 2)
			if line == "" {
				c.bodyRemaining = contentLength(c.request.Header("Content-Length"))
				if c.bodyRemaining > 0 {
					c.state = stateExpectBody
				} else {
					c.state = stateGotAll
					hasMore = false
				}
			} else {
				c.request.addHeaderLine(line)
			}
		case stateExpectBody:
			if buf.ReadableBytes() < c.bodyRemaining {
				hasMore = false
				break
			}
			c.request.setBody(append([]byte(nil), buf.Peek()[:c.bodyRemaining]...))
			buf.Retrieve(c.bodyRemaining)
			c.bodyRemaining = 0
			c.state = stateGotAll
			hasMore = false
		default:
			hasMore = false
		}
	}
	return ok
}

// contentLength parses a Content-Length header value, treating anything
// absent or malformed as no body rather than failing the request.
func contentLength(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// processRequestLine parses "METHOD path[?query] HTTP/1.x", matching
// muduo's HttpContext::processRequestLine.
func (c *Context) processRequestLine(line string) bool {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return false
	}
	if !c.request.setMethod(parts[0]) {
		return false
	}

	target := parts[1]
	if q := strings.IndexByte(target, '?'); q >= 0 {
		c.request.setPath(target[:q])
		c.request.setQuery(target[q:])
	} else {
		c.request.setPath(target)
	}

	switch parts[2] {
	case "HTTP/1.1":
		c.request.setVersion(VersionHTTP11)
	case "HTTP/1.0":
		c.request.setVersion(VersionHTTP10)
	default:
		return false
	}
	return true
}
