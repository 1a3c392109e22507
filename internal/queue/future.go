package queue

import (
	"context"

	"github.com/netask/pkg/protocol"
)

// Future is the pending response of a submitted request.
type Future struct {
	done chan struct{}
	resp *protocol.Response
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(resp *protocol.Response) {
	f.resp = resp
	close(f.done)
}

// Done is closed once the response is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Response returns the response, or nil while the request is pending.
func (f *Future) Response() *protocol.Response {
	select {
	case <-f.done:
		return f.resp
	default:
		return nil
	}
}

// Wait blocks until the response is available or ctx is done.
func (f *Future) Wait(ctx context.Context) (*protocol.Response, error) {
	select {
	case <-f.done:
		return f.resp, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}
