package queue

import (
	"errors"
	"time"

	"github.com/netask/internal/config"
	"github.com/netask/pkg/protocol"
)

// RetryPolicy controls how a request is retried after a transport failure.
// Every retry grows the per-attempt timeout by Timeout*BackoffMultiplier.
type RetryPolicy struct {
	Timeout           time.Duration
	MaxRetries        int
	BackoffMultiplier float64
	RetryServerErrors bool
}

// DefaultRetryPolicy is used for requests submitted without a policy.
var DefaultRetryPolicy = RetryPolicy{
	Timeout:           10 * time.Second,
	MaxRetries:        1,
	BackoffMultiplier: 1.0,
}

// PolicyFromConfig converts the configured retry settings.
func PolicyFromConfig(r config.Retry) RetryPolicy {
	return RetryPolicy{
		Timeout:           r.Timeout,
		MaxRetries:        r.MaxRetries,
		BackoffMultiplier: r.BackoffMultiplier,
		RetryServerErrors: r.RetryServerErrors,
	}
}

// Timeouts returns the per-attempt timeouts, first attempt included.
// A negative MaxRetries counts as zero, so there is always one attempt.
func (p RetryPolicy) Timeouts() []time.Duration {
	retries := max(p.MaxRetries, 0)
	out := make([]time.Duration, 0, retries+1)
	timeout := p.Timeout
	for i := 0; i <= retries; i++ {
		out = append(out, timeout)
		timeout += time.Duration(float64(timeout) * p.BackoffMultiplier)
	}
	return out
}

// retryable reports whether resp warrants another attempt. An oversized
// body is permanent and is never retried.
func (p RetryPolicy) retryable(resp *protocol.Response) bool {
	if resp.Error != nil {
		return !errors.Is(resp.Error, protocol.ErrBodyTooLarge)
	}
	return p.RetryServerErrors && resp.StatusCode >= 500
}
