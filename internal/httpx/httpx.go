// Package httpx is the shared HTTP layer for the cloud providers: buffered
// JSON requests with a bounded retry policy (exponential backoff with full
// jitter, honoring Retry-After).
package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type RetryPolicy struct {
	MaxRetries int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.MinBackoff <= 0 {
		p.MinBackoff = 250 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 5 * time.Second
	}
	if p.MaxBackoff < p.MinBackoff {
		p.MaxBackoff = p.MinBackoff
	}
	return p
}

// PostJSON sends a JSON POST and retries transient failures per the policy.
// A response with a non-retryable status is returned as-is (the caller maps
// non-2xx to its own error type); the caller must close the body.
func PostJSON(ctx context.Context, client *http.Client, url string, body []byte, headers http.Header, policy RetryPolicy) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	policy = policy.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header = headers.Clone()
		if req.Header == nil {
			req.Header = make(http.Header)
		}
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}

		resp, err := client.Do(req)
		if err == nil && resp != nil && !RetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		var retryAfterHint time.Duration
		if err == nil && resp != nil {
			if ra, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
				retryAfterHint = ra
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = &StatusError{Status: resp.StatusCode}
		} else {
			lastErr = err
		}

		if attempt == policy.MaxRetries {
			break
		}
		if err != nil && !retryableNetErr(err) {
			break
		}

		sleep := backoffWithJitter(attempt, policy.MinBackoff, policy.MaxBackoff)
		if retryAfterHint > sleep {
			sleep = retryAfterHint
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// StatusError marks a retry loop that ended on an HTTP status rather than a
// transport failure.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return "http status " + strconv.Itoa(e.Status)
}

// RetryableStatus reports whether a status is worth retrying.
func RetryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusConflict ||
		status == http.StatusTooManyRequests ||
		(status >= 500 && status <= 599)
}

// ClassifyErr maps a transport error onto a (code, retryable) pair using the
// error-code vocabulary shared by all providers.
func ClassifyErr(err error) (code string, retryable bool) {
	switch {
	case err == nil:
		return "network_error", false
	case errors.Is(err, context.Canceled):
		return "canceled", false
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout", true
	}
	return "network_error", true
}

func retryableNetErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var rng = struct {
	mu sync.Mutex
	r  *rand.Rand
}{
	r: rand.New(rand.NewSource(time.Now().UnixNano())),
}

func backoffWithJitter(attempt int, min, max time.Duration) time.Duration {
	backoff := min
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= max {
			backoff = max
			break
		}
	}
	rng.mu.Lock()
	n := rng.r.Int63n(int64(backoff) + 1)
	rng.mu.Unlock()
	return time.Duration(n)
}

func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
