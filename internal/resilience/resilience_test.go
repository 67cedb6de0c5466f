package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qbank-cli/internal/config"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		Backoff:     Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2},
	}
}

func TestPolicyDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("overloaded"), 529)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicyDo_Exhausted(t *testing.T) {
	var retried []int
	p := fastPolicy(2)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := p.Do(context.Background(), func(context.Context) error {
		return NewTransientError(errors.New("rate limited"), 429)
	})
	require.Error(t, err)

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 2, ex.Attempts)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, []int{1}, retried)
}

func TestPolicyDo_PermanentNotRetried(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyDo_CustomClassifier(t *testing.T) {
	sentinel := errors.New("flaky")
	p := fastPolicy(3)
	p.Retryable = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	_ = p.Do(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	})
	assert.Equal(t, 3, calls)
}

func TestPolicyDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fastPolicy(5).Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("timeout"), 504)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("503"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
	assert.Equal(t, 400*time.Millisecond, b.Delay(2))
	assert.Equal(t, time.Second, b.Delay(10))

	b.Jitter = 0.5
	for i := 0; i < 50; i++ {
		d := b.Delay(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestNewPolicy(t *testing.T) {
	p := NewPolicy(config.RetryConfig{MaxAttempts: 5, InitialBackoffMs: 200, MaxBackoffMs: 1000, Multiplier: 3}, nil)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, p.Backoff.Initial)
	assert.Equal(t, time.Second, p.Backoff.Max)
	assert.InDelta(t, 3.0, p.Backoff.Multiplier, 0.001)

	d := NewPolicy(config.RetryConfig{JitterFraction: -1}, nil)
	assert.Equal(t, DefaultPolicy().MaxAttempts, d.MaxAttempts)
	assert.InDelta(t, 0.25, d.Backoff.Jitter, 0.001)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"explicit", NewTransientError(errors.New("x"), 503), true},
		{"wrapped", fmt.Errorf("call: %w", NewTransientError(errors.New("x"), 429)), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"string pattern", errors.New("dial tcp: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	b := NewBreaker("llm", 2, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	fail := func(context.Context) error { return errors.New("down") }
	ok := func(context.Context) error { return nil }

	require.Error(t, b.Call(context.Background(), fail))
	assert.Equal(t, BreakerClosed, b.State())
	require.Error(t, b.Call(context.Background(), fail))
	assert.Equal(t, BreakerOpen, b.State())

	err := b.Call(context.Background(), ok)
	assert.ErrorIs(t, err, ErrBreakerOpen)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, BreakerHalfOpen, b.State())
	require.NoError(t, b.Call(context.Background(), ok))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("llm", 1, time.Second)
	now := time.Now()
	b.now = func() time.Time { return now }

	_ = b.Call(context.Background(), func(context.Context) error { return errors.New("x") })
	now = now.Add(2 * time.Second)
	_ = b.Call(context.Background(), func(context.Context) error { return errors.New("x") })
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreaker_TripsFilter(t *testing.T) {
	b := NewBreaker("llm", 1, time.Minute)
	b.Trips = IsTransient

	_ = b.Call(context.Background(), func(context.Context) error { return errors.New("validation") })
	assert.Equal(t, BreakerClosed, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestGuard_NilBreaker(t *testing.T) {
	v, err := Guard(context.Background(), nil, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDLQEntryCanRetry(t *testing.T) {
	e := DLQEntry{Retryable: true, Attempts: 1, MaxAttempts: 3}
	assert.True(t, e.CanRetry())
	e.Attempts = 3
	assert.False(t, e.CanRetry())
	e = DLQEntry{Retryable: false, MaxAttempts: 3}
	assert.False(t, e.CanRetry())
}
