package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/config"
)

// Backoff is an exponential backoff curve with jitter.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is a fraction of the computed delay (0.25 = ±25%).
	Jitter float64
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Policy is the single retry policy shared by every LLM call site: attempt
// budget, backoff curve and the classifier deciding what is retryable.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsTransient.
	Retryable func(err error) bool

	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff: Backoff{
			Initial:    500 * time.Millisecond,
			Max:        30 * time.Second,
			Multiplier: 2.0,
			Jitter:     0.25,
		},
	}
}

// NewPolicy builds a policy from the retry config section. Zero values fall
// back to DefaultPolicy.
func NewPolicy(cfg config.RetryConfig, retryable func(error) bool) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffMs > 0 {
		p.Backoff.Initial = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		p.Backoff.Max = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	if cfg.Multiplier > 0 {
		p.Backoff.Multiplier = cfg.Multiplier
	}
	if cfg.JitterFraction >= 0 {
		p.Backoff.Jitter = cfg.JitterFraction
	}
	p.Retryable = retryable
	return p
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Backoff.Initial <= 0 {
		p.Backoff.Initial = d.Backoff.Initial
	}
	if p.Backoff.Max <= 0 {
		p.Backoff.Max = d.Backoff.Max
	}
	if p.Backoff.Multiplier <= 0 {
		p.Backoff.Multiplier = d.Backoff.Multiplier
	}
	if p.Backoff.Jitter < 0 {
		p.Backoff.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts the
// attempt budget, or ctx is done.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Retry is Do for calls that return a value.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !p.Retryable(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(p.Backoff.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}

// LogRetries returns an OnRetry callback that logs each attempt.
func LogRetries(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
