package http

import (
	"strconv"

	"github.com/loopcore/reactor"
)

// StatusCode is an HTTP response status code. Only the handful muduo's
// HttpResponse ships with are named; any other value can be set directly.
type StatusCode int

const (
	StatusOK               StatusCode = 200
	StatusMovedPermanently StatusCode = 301
	StatusBadRequest       StatusCode = 400
	StatusNotFound         StatusCode = 404
)

// Response accumulates the status line, headers, and body a Handler wants
// to send back; AppendToBuffer serializes it onto the wire exactly once,
// when the connection's handler has finished populating it.
type Response struct {
	statusCode      StatusCode
	statusMessage   string
	closeConnection bool
	headers         map[string]string
	body            []byte
}

// NewResponse starts a response defaulting to 200 OK; closeConnection
// should reflect whether the request's framing requires closing the
// connection after this response (HTTP/1.0 without Keep-Alive, or an
// explicit "Connection: close").
func NewResponse(closeConnection bool) *Response {
	return &Response{
		statusCode:      StatusOK,
		statusMessage:   "OK",
		closeConnection: closeConnection,
	}
}

func (r *Response) SetStatusCode(code StatusCode) { r.statusCode = code }
func (r *Response) SetStatusMessage(msg string)   { r.statusMessage = msg }
func (r *Response) SetCloseConnection(b bool)     { r.closeConnection = b }
func (r *Response) CloseConnection() bool         { return r.closeConnection }
func (r *Response) SetBody(body []byte)           { r.body = body }

func (r *Response) SetContentType(contentType string) {
	r.AddHeader("Content-Type", contentType)
}

func (r *Response) AddHeader(field, value string) {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[field] = value
}

// AppendToBuffer serializes the status line, headers, and body into buf in
// wire order, ported from muduo's HttpResponse::appendToBuffer.
func (r *Response) AppendToBuffer(buf *reactor.Buffer) {
	buf.Append([]byte("HTTP/1.1 " + strconv.Itoa(int(r.statusCode)) + " "))
	buf.Append([]byte(r.statusMessage))
	buf.Append([]byte("\r\n"))

	if r.closeConnection {
		buf.Append([]byte("Connection: close\r\n"))
	} else {
		buf.Append([]byte("Content-Length: " + strconv.Itoa(len(r.body)) + "\r\n"))
		buf.Append([]byte("Connection: Keep-Alive\r\n"))
	}

	for field, value := range r.headers {
		buf.Append([]byte(field + ": " + value + "\r\n"))
	}

	buf.Append([]byte("\r\n"))
	buf.Append(r.body)
}
