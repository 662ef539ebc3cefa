// Package ratelimit provides the two request governors used by the service:
// a retrying, circuit-breaking Limiter for the citation graph API, and a
// sequential TaskQueue for the enrichment API. The two call sites each own
// their own independently tuned instance; there is no shared state.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
)

// Default limiter parameters.
const (
	// DefaultBackoffCeiling caps the exponential retry backoff.
	DefaultBackoffCeiling = 30 * time.Second

	// DefaultFailureThreshold is the number of rolling rate-limit failures
	// tolerated before the base spacing starts inflating.
	DefaultFailureThreshold = 3
)

// Config holds Limiter tuning parameters.
type Config struct {
	// MinInterval is the minimum spacing between consecutive calls.
	MinInterval time.Duration

	// MaxRetries is how many times a rate-limited call is retried before
	// the failure is surfaced.
	MaxRetries int

	// BackoffCeiling caps both the per-retry backoff and the inflated base
	// spacing. Defaults to DefaultBackoffCeiling if zero.
	BackoffCeiling time.Duration

	// FailureThreshold is the rolling failure count beyond which the base
	// spacing itself is increased exponentially (circuit breaking).
	// Defaults to DefaultFailureThreshold if zero.
	FailureThreshold int
}

// Limiter serializes outbound calls to one remote endpoint family. It
// enforces a minimum inter-call spacing via a token bucket, retries calls
// rejected with a rate-limit signal using the server-supplied retry-after
// duration or exponential backoff, and inflates the base spacing once a
// rolling failure counter crosses its threshold. The counter resets to
// baseline on the first success.
//
// A Limiter is safe for concurrent use; suspended callers do not block
// unrelated work.
type Limiter struct {
	cfg     Config
	limiter *rate.Limiter

	mu       sync.Mutex
	failures int
}

// NewLimiter creates a Limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.BackoffCeiling <= 0 {
		cfg.BackoffCeiling = DefaultBackoffCeiling
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	return &Limiter{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
	}
}

// Wait blocks until the inter-call spacing allows another request or the
// context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Execute runs call through the limiter: it waits for the spacing slot,
// invokes the call, and on a rate-limit rejection retries up to MaxRetries
// times. Non-rate-limit errors propagate immediately without consuming the
// retry budget.
func (l *Limiter) Execute(ctx context.Context, call func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := l.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		err := call(ctx)
		if err == nil {
			l.recordSuccess()
			return nil
		}

		if !errors.Is(err, domain.ErrRateLimited) {
			return err
		}
		l.recordFailure()

		if attempt >= l.cfg.MaxRetries {
			return domain.NewAppError(domain.ErrorKindRateLimit,
				fmt.Sprintf("rate limit retries exhausted after %d attempts", attempt+1), err)
		}

		if waitErr := sleep(ctx, l.retryDelay(err, attempt)); waitErr != nil {
			return waitErr
		}
	}
}

// Do runs call through l and returns its typed result. It exists because
// methods cannot carry type parameters.
func Do[T any](ctx context.Context, l *Limiter, call func(context.Context) (T, error)) (T, error) {
	var result T
	err := l.Execute(ctx, func(ctx context.Context) error {
		v, callErr := call(ctx)
		if callErr != nil {
			return callErr
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// retryDelay picks the server-supplied retry-after duration when the error
// carries one, otherwise exponential backoff starting at MinInterval and
// doubling per attempt, capped at the ceiling.
func (l *Limiter) retryDelay(err error, attempt int) time.Duration {
	var rle *domain.RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		if rle.RetryAfter > l.cfg.BackoffCeiling {
			return l.cfg.BackoffCeiling
		}
		return rle.RetryAfter
	}

	delay := l.cfg.MinInterval
	for i := 0; i < attempt && delay < l.cfg.BackoffCeiling; i++ {
		delay *= 2
	}
	if delay > l.cfg.BackoffCeiling {
		delay = l.cfg.BackoffCeiling
	}
	return delay
}

// recordFailure bumps the rolling failure counter and, past the threshold,
// doubles the base spacing per excess failure up to the ceiling.
func (l *Limiter) recordFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures++
	excess := l.failures - l.cfg.FailureThreshold
	if excess <= 0 {
		return
	}

	base := l.cfg.MinInterval
	for i := 0; i < excess && base < l.cfg.BackoffCeiling; i++ {
		base *= 2
	}
	if base > l.cfg.BackoffCeiling {
		base = l.cfg.BackoffCeiling
	}
	l.limiter.SetLimit(rate.Every(base))
}

// recordSuccess resets the failure counter and restores baseline spacing.
func (l *Limiter) recordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failures == 0 {
		return
	}
	l.failures = 0
	l.limiter.SetLimit(rate.Every(l.cfg.MinInterval))
}

// BaseInterval returns the spacing currently enforced between calls. Exposed
// for observability and tests.
func (l *Limiter) BaseInterval() time.Duration {
	limit := l.limiter.Limit()
	if limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(limit))
}

// sleep waits for d, respecting context cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
