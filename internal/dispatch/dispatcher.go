// Package dispatch posts form-encoded requests through the shared request
// queue and interprets the JSON result envelope of the response.
//
// Every response goes through the same interpretation whether the caller
// blocks (Do), waits on a future (Submit) or registers callbacks (Dispatch).
// Failures are always returned or delivered as *Failure, never panicked.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/netask/internal/config"
	"github.com/netask/internal/health"
	"github.com/netask/internal/queue"
	"github.com/netask/pkg/protocol"
)

const formContentType = "application/x-www-form-urlencoded; charset=UTF-8"

// DefaultSyncTimeout bounds Do when no timeout is configured.
const DefaultSyncTimeout = 10 * time.Second

// Submitter is the part of the request queue a Dispatcher needs.
type Submitter interface {
	Enqueue(ctx context.Context, req *protocol.Request, policy queue.RetryPolicy, deliver func(*protocol.Response)) error
}

// Handler receives the outcome of an asynchronous dispatch. Exactly one of
// the two functions is called; nil functions are skipped.
type Handler struct {
	OnSuccess func(Result)
	OnFailure func(*Failure)
}

// Dispatcher submits RequestSpecs to a request queue.
type Dispatcher struct {
	queue       Submitter
	policy      queue.RetryPolicy
	syncTimeout time.Duration
	executor    Executor
	indicator   Indicator
	waitMessage string
	headers     map[string]string
	metrics     *health.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRetryPolicy sets the retry policy of every request.
func WithRetryPolicy(p queue.RetryPolicy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithSyncTimeout bounds how long Do waits for a response.
func WithSyncTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.syncTimeout = timeout }
}

// WithExecutor sets where Dispatch handlers run.
func WithExecutor(e Executor) Option {
	return func(d *Dispatcher) { d.executor = e }
}

// WithIndicator shows ind with message while each request is outstanding.
func WithIndicator(ind Indicator, message string) Option {
	return func(d *Dispatcher) {
		d.indicator = ind
		d.waitMessage = message
	}
}

// WithHeaders adds headers to every request, overriding configured ones
// with the same name.
func WithHeaders(headers map[string]string) Option {
	return func(d *Dispatcher) {
		merged := copyParams(d.headers)
		for k, v := range headers {
			merged[k] = v
		}
		d.headers = merged
	}
}

// WithMetrics records dispatch outcomes.
func WithMetrics(m *health.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithConfig applies the dispatch section of the configuration.
func WithConfig(cfg config.Dispatch) Option {
	return func(d *Dispatcher) {
		d.policy = queue.PolicyFromConfig(cfg.Retry)
		d.syncTimeout = cfg.SyncTimeout
		if len(cfg.Headers) > 0 {
			d.headers = copyParams(cfg.Headers)
		}
	}
}

// New creates a dispatcher submitting to q.
func New(q Submitter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:       q,
		policy:      queue.DefaultRetryPolicy,
		syncTimeout: DefaultSyncTimeout,
		executor:    Inline,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.syncTimeout <= 0 {
		d.syncTimeout = DefaultSyncTimeout
	}
	if d.executor == nil {
		d.executor = Inline
	}
	return d
}

// Call is a dispatched request whose outcome arrives later.
type Call struct {
	ID   string
	Spec RequestSpec

	done    chan struct{}
	result  Result
	failure *Failure
}

// Done is closed once the outcome is available.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the outcome is available or ctx is done. A context
// error is returned as a transport Failure; the request keeps running.
func (c *Call) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		if c.failure != nil {
			return Result{}, c.failure
		}
		return c.result, nil
	case <-ctx.Done():
		return Result{}, &Failure{Kind: KindTransport, StatusCode: -1, Err: context.Cause(ctx)}
	}
}

// Submit dispatches spec and returns a Call to wait on.
func (d *Dispatcher) Submit(ctx context.Context, spec RequestSpec) *Call {
	call := &Call{ID: uuid.NewString(), Spec: spec, done: make(chan struct{})}
	ind := showIndicator(d.indicator, d.waitMessage)

	d.send(ctx, call, func(resp *protocol.Response) {
		call.result, call.failure = d.finish(call, resp)
		ind.dismiss()
		close(call.done)
	})

	return call
}

// Dispatch sends spec and returns immediately. The handler runs on the
// configured Executor after the response arrives.
func (d *Dispatcher) Dispatch(ctx context.Context, spec RequestSpec, h Handler) *Call {
	call := &Call{ID: uuid.NewString(), Spec: spec, done: make(chan struct{})}
	ind := showIndicator(d.indicator, d.waitMessage)

	d.send(ctx, call, func(resp *protocol.Response) {
		result, failure := d.finish(call, resp)
		call.result, call.failure = result, failure
		close(call.done)

		d.executor.Execute(func() {
			ind.dismiss()
			if failure != nil {
				if h.OnFailure != nil {
					h.OnFailure(failure)
				}
				return
			}
			if h.OnSuccess != nil {
				h.OnSuccess(result)
			}
		})
	})

	return call
}

// Do sends spec and blocks until the response arrives, the sync timeout
// elapses, or ctx is done. The returned error is always a *Failure.
func (d *Dispatcher) Do(ctx context.Context, spec RequestSpec) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	call := &Call{ID: uuid.NewString(), Spec: spec, done: make(chan struct{})}
	ind := showIndicator(d.indicator, d.waitMessage)
	defer ind.dismiss()

	responses := make(chan *protocol.Response, 1)
	d.send(ctx, call, func(resp *protocol.Response) {
		responses <- resp
	})

	timer := time.NewTimer(d.syncTimeout)
	defer timer.Stop()

	var resp *protocol.Response
	select {
	case resp = <-responses:
	case <-timer.C:
		resp = &protocol.Response{Error: fmt.Errorf("%w after %s: %w", ErrTimeout, d.syncTimeout, context.DeadlineExceeded)}
	case <-ctx.Done():
		resp = &protocol.Response{Error: context.Cause(ctx)}
	}

	result, failure := d.finish(call, resp)
	ind.dismiss()
	if failure != nil {
		return Result{}, failure
	}
	return result, nil
}

// send enqueues the request for call; enqueue errors are delivered like
// transport failures so callers see a single failure path.
func (d *Dispatcher) send(ctx context.Context, call *Call, deliver func(*protocol.Response)) {
	req := &protocol.Request{
		URL:    call.Spec.URL(),
		Method: http.MethodPost,
		Headers: map[string]string{
			"Content-Type": formContentType,
			"X-Request-ID": call.ID,
		},
		Body:    []byte(call.Spec.Encode()),
		Timeout: d.policy.Timeout,
	}
	for k, v := range d.headers {
		req.Headers[k] = v
	}

	if err := d.queue.Enqueue(ctx, req, d.policy, deliver); err != nil {
		go deliver(&protocol.Response{Error: err})
	}
}

func (d *Dispatcher) finish(call *Call, resp *protocol.Response) (Result, *Failure) {
	result, failure := interpret(resp)
	if failure != nil {
		d.metrics.RecordDispatch(failure.Kind.String())
		log.Printf("[dispatch] %s POST %s: %v", call.ID, call.Spec.URL(), failure)
		return Result{}, failure
	}
	d.metrics.RecordDispatch("success")
	return result, nil
}
