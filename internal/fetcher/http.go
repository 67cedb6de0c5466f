package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// StatusError is a non-success HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return "fetcher: http " + strconv.Itoa(e.Code) + " from " + e.URL
}

// hostLimiter paces requests to one host. The rate halves on 429 and
// recovers by 20% per success, bounded to [initial/4, initial].
type hostLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

func newHostLimiter(r rate.Limit) *hostLimiter {
	return &hostLimiter{limiter: rate.NewLimiter(r, 1), initial: r, current: r}
}

func (h *hostLimiter) wait(ctx context.Context) error {
	return h.limiter.Wait(ctx)
}

func (h *hostLimiter) onSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.set(min(h.current*1.2, h.initial))
}

func (h *hostLimiter) onRateLimit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.set(max(h.current*0.5, h.initial/4))
}

func (h *hostLimiter) set(r rate.Limit) {
	h.current = r
	h.limiter.SetLimit(r)
}

func (h *hostLimiter) limit() rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// HTTPFetcher downloads over http and https with per-host pacing and
// retries on 429 and 5xx responses.
type HTTPFetcher struct {
	client   *http.Client
	opts     Options
	baseWait time.Duration

	mu       sync.Mutex
	limiters map[string]*hostLimiter
}

// NewHTTPFetcher creates an HTTPFetcher. Zero options fall back to a 60s
// timeout, 3 attempts and 2 requests per second per host.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "qbank-cli/1.0"
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		baseWait: time.Second,
		limiters: make(map[string]*hostLimiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *hostLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = newHostLimiter(rate.Limit(f.opts.RequestsPerSecond))
		f.limiters[host] = l
	}
	return l
}

// Download fetches rawURL. The caller closes the body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := f.limiterFor(req.URL.Host)
	target := req.URL.String()

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := lim.wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "fetcher: download cancelled")
			}
			lastErr = eris.Wrapf(err, "fetcher: get %s", target)
			zap.L().Warn("fetcher: request failed, retrying",
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			f.sleep(ctx, f.backoff(attempt))
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			lim.onSuccess()
			return resp, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			_ = resp.Body.Close()
			lim.onRateLimit()
			lastErr = &StatusError{Code: resp.StatusCode, URL: target}
			wait := retryAfter(resp.Header.Get("Retry-After"), f.backoff(attempt))
			zap.L().Warn("fetcher: rate limited, backing off",
				zap.String("url", target),
				zap.Float64("new_rate", float64(lim.limit())),
				zap.Duration("wait", wait),
			)
			f.sleep(ctx, wait)
		case resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = &StatusError{Code: resp.StatusCode, URL: target}
			zap.L().Warn("fetcher: server error, retrying",
				zap.String("url", target),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			f.sleep(ctx, f.backoff(attempt))
		default:
			_ = resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, URL: target}
		}
	}

	return nil, eris.Wrapf(lastErr, "fetcher: %d attempts exhausted", f.opts.MaxRetries)
}

// backoff is exponential from baseWait, capped at 30s, with up to 50% jitter.
func (f *HTTPFetcher) backoff(attempt int) time.Duration {
	d := time.Duration(float64(f.baseWait) * math.Pow(2, float64(attempt)))
	d = min(d, 30*time.Second)
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}

func (f *HTTPFetcher) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// retryAfter parses a Retry-After value given in seconds.
func retryAfter(v string, fallback time.Duration) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return fallback
	}
	return min(time.Duration(secs)*time.Second, time.Minute)
}
