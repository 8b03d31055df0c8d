package anthropic

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rhuss/claudepipe/pkg/api"
)

// upstreamResult is the outcome of a non-streaming call that reached the
// upstream: a status, headers and the full body. Synthetic is set for the
// result produced when retries are exhausted.
type upstreamResult struct {
	Status    int
	Header    http.Header
	Body      []byte
	Synthetic bool
}

// maxRetriesBody is the body of the synthetic result.
var maxRetriesBody = []byte(`{"type":"error","error":{"type":"rate_limit_error","message":"Max retries exceeded"}}`)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retrier sends a request up to maxAttempts times, sleeping between
// attempts on HTTP 429 only.
type retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	sleep       Sleeper

	// timeout bounds each attempt, including reading the body.
	timeout time.Duration

	// onRetry is called before each sleep.
	onRetry func(attempt int, delay time.Duration)
}

// newPolicy returns base * 2^n delays with no jitter and no overall cap.
func (r *retrier) newPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// do runs send until it returns a non-429 response, a transport error, or
// the attempts run out. In the last case it returns a synthetic 429 result
// rather than an error, so callers see one result shape. No sleep follows
// the final attempt.
func (r *retrier) do(ctx context.Context, session *Session, send func(ctx context.Context) (*http.Response, error)) (*upstreamResult, *api.APIError) {
	policy := r.newPolicy()

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		resp, body, err := r.attempt(ctx, send)
		if err != nil {
			return nil, session.Annotate(mapNetworkError(err))
		}
		session.Observe(resp.Header)

		// Advanced once per attempt, so the fallback is base * 2^attempt
		// even when earlier attempts used retry-after.
		fallback := policy.NextBackOff()

		if resp.StatusCode != http.StatusTooManyRequests {
			return &upstreamResult{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
		}
		if attempt == r.maxAttempts-1 {
			break
		}

		delay := retryAfter(resp.Header, fallback)
		slog.Warn("rate limit hit, retrying",
			"delay", delay,
			"retry_count", attempt+1,
			"request_id", session.RequestID(),
		)
		if r.onRetry != nil {
			r.onRetry(attempt+1, delay)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return nil, session.Annotate(mapNetworkError(err))
		}
	}

	slog.Error("max retries exceeded for rate limit", "attempts", r.maxAttempts)
	return &upstreamResult{
		Status:    http.StatusTooManyRequests,
		Header:    http.Header{},
		Body:      bytes.Clone(maxRetriesBody),
		Synthetic: true,
	}, nil
}

// attempt performs one call under the per-attempt timeout and reads the
// whole body before the timeout context is released.
func (r *retrier) attempt(ctx context.Context, send func(ctx context.Context) (*http.Response, error)) (*http.Response, []byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	resp, err := send(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// retryAfter reads the retry-after header as whole seconds or an HTTP
// date. Missing or unparsable values yield fallback.
func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	v := h.Get("retry-after")
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}
