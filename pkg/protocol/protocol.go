package protocol

import (
	"context"
	"net/http"
	"time"
)

// Request represents a generic request to be sent.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// Clone returns a copy of the request with the given per-attempt timeout.
func (r *Request) Clone(timeout time.Duration) *Request {
	c := *r
	c.Timeout = timeout
	return &c
}

// Response represents the result of a request.
type Response struct {
	StatusCode   int
	Duration     time.Duration
	BytesRead    int64
	BytesWritten int64
	Body         []byte
	Attempts     int
	Error        error
}

// Client is the interface for protocol implementations.
type Client interface {
	// Do executes a request and returns the response.
	Do(ctx context.Context, req *Request) *Response

	// Close releases any resources held by the client.
	Close() error
}

// Streamer is implemented by clients that can hand out the live response
// stream instead of buffering the body.
type Streamer interface {
	// Open executes the request and returns the response with an unread body.
	// The caller must close the body.
	Open(ctx context.Context, req *Request) (*http.Response, error)
}

// ClientConfig contains common configuration for all clients.
type ClientConfig struct {
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	TLSInsecure     bool
	MaxBodyBytes    int64
	UserAgent       string
}
