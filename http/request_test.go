package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMethod_String(t *testing.T) {
	assert.Equal(t, "GET", MethodGet.String())
	assert.Equal(t, "POST", MethodPost.String())
	assert.Equal(t, "UNKNOWN", MethodInvalid.String())
}

func TestRequest_SetMethodRejectsUnknownVerbs(t *testing.T) {
	var r Request
	assert.True(t, r.setMethod("GET"))
	assert.Equal(t, MethodGet, r.Method())

	assert.False(t, r.setMethod("PATCH"))
	assert.Equal(t, MethodInvalid, r.Method())
}

func TestRequest_AddHeaderLineTrimsValue(t *testing.T) {
	var r Request
	r.addHeaderLine("Host:   example.com  ")
	assert.Equal(t, "example.com", r.Header("Host"))
	assert.Equal(t, "", r.Header("Missing"))
}

func TestRequest_AddHeaderLineWithoutColonIsIgnored(t *testing.T) {
	var r Request
	r.addHeaderLine("not-a-header")
	assert.Empty(t, r.Headers())
}

func TestRequest_PathAndQuerySplit(t *testing.T) {
	var r Request
	r.setPath("/search")
	r.setQuery("?q=go")
	assert.Equal(t, "/search", r.Path())
	assert.Equal(t, "?q=go", r.Query())
}

func TestRequest_Reset(t *testing.T) {
	var r Request
	r.setMethod("POST")
	r.setPath("/x")
	r.addHeaderLine("A: b")
	r.setReceiveTime(time.Now())

	r.reset()
	assert.Equal(t, MethodInvalid, r.Method())
	assert.Equal(t, "", r.Path())
	assert.Empty(t, r.Headers())
	assert.True(t, r.ReceiveTime().IsZero())
}
