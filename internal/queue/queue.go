// Package queue implements the request queue shared by every dispatcher of a
// process: a fixed pool of workers draining a bounded job channel, a rate
// limiter, and a retry policy applied per request.
package queue

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netask/internal/config"
	"github.com/netask/internal/health"
	"github.com/netask/pkg/protocol"
	"golang.org/x/time/rate"
)

var (
	// ErrQueueFull is returned when the job channel has no free slot.
	ErrQueueFull = errors.New("request queue is full")
	// ErrStopped is returned for submissions after Stop.
	ErrStopped = errors.New("request queue is stopped")
)

// job represents a single queued request.
type job struct {
	ctx     context.Context
	req     *protocol.Request
	policy  RetryPolicy
	deliver func(*protocol.Response)
}

// Queue manages a pool of worker goroutines executing requests.
type Queue struct {
	cfg     config.Queue
	client  protocol.Client
	metrics *health.Metrics
	limiter *rate.Limiter
	jobs    chan job
	wg      sync.WaitGroup
	active  int64
	cancel  context.CancelFunc

	mu      sync.RWMutex
	started bool
	stopped bool
}

// New creates a new request queue executing requests with client.
func New(cfg config.Queue, client protocol.Client, metrics *health.Metrics) *Queue {
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = int(cfg.RateLimit / 10) // Burst of 10% of the rate
		if burst < 1 {
			burst = 1
		}
	}

	return &Queue{
		cfg:     cfg,
		client:  client,
		metrics: metrics,
		limiter: rate.NewLimiter(limit, burst),
		jobs:    make(chan job, cfg.QueueSize),
	}
}

// Start launches the workers. Calling Start more than once has no effect.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)

	for i := 0; i < q.cfg.PoolSize; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}

	log.Printf("[queue] started %d workers with queue size %d", q.cfg.PoolSize, q.cfg.QueueSize)
}

// worker is the main worker goroutine.
func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.metrics.SetQueuedRequests(len(q.jobs))
			j.deliver(q.process(ctx, j))
		}
	}
}

// process executes a single job, retrying per its policy.
func (q *Queue) process(workerCtx context.Context, j job) *protocol.Response {
	ctx, cancel := mergeCancel(j.ctx, workerCtx)
	defer cancel()

	start := time.Now()

	// Wait for rate limiter
	if err := q.limiter.Wait(ctx); err != nil {
		return &protocol.Response{Error: err, Duration: time.Since(start)}
	}

	n := atomic.AddInt64(&q.active, 1)
	q.metrics.SetActiveWorkers(int(n))
	q.metrics.IncRequestsInFlight()
	defer func() {
		q.metrics.SetActiveWorkers(int(atomic.AddInt64(&q.active, -1)))
		q.metrics.DecRequestsInFlight()
	}()

	var resp *protocol.Response
	timeouts := j.policy.Timeouts()
	for attempt, timeout := range timeouts {
		if attempt > 0 {
			q.metrics.IncRetries()
			log.Printf("[queue] retrying %s %s (attempt %d/%d, timeout %s): %v",
				j.req.Method, j.req.URL, attempt+1, len(timeouts), timeout, retryCause(resp))
		}

		resp = q.client.Do(ctx, j.req.Clone(timeout))
		resp.Attempts = attempt + 1

		if ctx.Err() != nil || !j.policy.retryable(resp) {
			break
		}
	}
	resp.Duration = time.Since(start)

	q.metrics.RecordRequest(j.req.Method, resp.StatusCode, resp.Duration.Seconds())
	return resp
}

func retryCause(resp *protocol.Response) interface{} {
	if resp.Error != nil {
		return resp.Error
	}
	return resp.StatusCode
}

// Enqueue adds a request to the queue; deliver is called exactly once with
// the final response, on a worker goroutine. Enqueue never blocks.
func (q *Queue) Enqueue(ctx context.Context, req *protocol.Request, policy RetryPolicy, deliver func(*protocol.Response)) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		return ErrStopped
	}

	select {
	case q.jobs <- job{ctx: ctx, req: req, policy: policy, deliver: deliver}:
		q.metrics.SetQueuedRequests(len(q.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit adds a request to the queue and returns a Future for its response.
func (q *Queue) Submit(ctx context.Context, req *protocol.Request, policy RetryPolicy) (*Future, error) {
	f := newFuture()
	if err := q.Enqueue(ctx, req, policy, f.complete); err != nil {
		return nil, err
	}
	return f, nil
}

// Active returns the number of requests currently executing.
func (q *Queue) Active() int {
	return int(atomic.LoadInt64(&q.active))
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Stop cancels in-flight requests and waits for the workers to exit.
// Queued requests that never ran are delivered a response carrying ErrStopped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	if q.cancel != nil {
		q.cancel()
	}
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()

	for j := range q.jobs {
		j.deliver(&protocol.Response{Error: ErrStopped})
	}
	q.metrics.SetQueuedRequests(0)

	if q.client != nil {
		q.client.Close()
	}

	log.Printf("[queue] all workers stopped")
}

// Drain waits for queued and in-flight requests to complete with a timeout.
func (q *Queue) Drain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)

	for (q.Active() > 0 || q.Len() > 0) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if active, queued := q.Active(), q.Len(); active+queued > 0 {
		log.Printf("[queue] drain timeout with %d running and %d queued requests", active, queued)
	}
}

// mergeCancel returns a context carrying a's values that is cancelled when
// either a or b is done.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(a)
	stop := context.AfterFunc(b, func() {
		cancel(context.Cause(b))
	})
	return ctx, func() {
		stop()
		cancel(nil)
	}
}
