package protocol

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
)

// DefaultMaxBodyBytes bounds buffered response bodies when the config leaves it unset.
const DefaultMaxBodyBytes = 8 << 20

// ErrBodyTooLarge is set on a Response whose body went past the configured limit.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPClient implements Client and Streamer for HTTP/1.1 and HTTP/2.
type HTTPClient struct {
	client    *http.Client
	maxBody   int64
	userAgent string
	bufPool   sync.Pool
}

// NewHTTPClient creates a new HTTP/1.1 client.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecure,
		},
	}

	return newHTTPClient(transport, cfg)
}

// NewHTTP2Client creates a new HTTP/2 client. Plain http:// URLs are spoken
// over h2c.
func NewHTTP2Client(cfg ClientConfig) *HTTPClient {
	transport := &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
			d := &net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}
			return d.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecure,
		},
	}

	return newHTTPClient(transport, cfg)
}

func newHTTPClient(rt http.RoundTripper, cfg ClientConfig) *HTTPClient {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	return &HTTPClient{
		client:    &http.Client{Transport: rt},
		maxBody:   maxBody,
		userAgent: cfg.UserAgent,
		bufPool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, 32*1024)
				return &buf
			},
		},
	}
}

// Open executes an HTTP request and returns the response without reading
// the body. The request timeout, if any, covers the whole exchange and is
// released when the body is closed.
func (c *HTTPClient) Open(ctx context.Context, req *Request) (*http.Response, error) {
	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	cancel := context.CancelFunc(func() {})
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		cancel()
		return nil, err
	}

	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, err
	}
	httpResp.Body = &cancelOnClose{ReadCloser: httpResp.Body, cancel: cancel}

	return httpResp, nil
}

// Do executes an HTTP request and buffers the response body.
func (c *HTTPClient) Do(ctx context.Context, req *Request) *Response {
	start := time.Now()
	resp := &Response{BytesWritten: int64(len(req.Body))}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpResp, err := c.Open(ctx, req.Clone(0))
	if err != nil {
		resp.Error = err
		resp.Duration = time.Since(start)
		return resp
	}
	defer httpResp.Body.Close()

	resp.StatusCode = httpResp.StatusCode

	bufPtr := c.bufPool.Get().(*[]byte)
	defer c.bufPool.Put(bufPtr)

	var body bytes.Buffer
	n, err := io.CopyBuffer(&body, io.LimitReader(httpResp.Body, c.maxBody+1), *bufPtr)
	resp.BytesRead = n
	resp.Duration = time.Since(start)
	if err != nil {
		resp.Error = fmt.Errorf("reading response body: %w", err)
		return resp
	}
	if n > c.maxBody {
		resp.Error = fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, c.maxBody)
		return resp
	}
	resp.Body = body.Bytes()

	return resp
}

// Close releases resources.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
