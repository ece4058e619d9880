package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/o2cms/cfmigrate/internal/errors"
)

// RequestFactory builds a fresh request for each attempt, so request bodies
// can be replayed.
type RequestFactory func(ctx context.Context) (*http.Request, error)

// DoWithRetry executes the request built by newReq, retrying on 429 responses
// and on transport errors until the attempt budget is spent.
//
// On 429 the delay comes from the configured reset headers, falling back to
// the retry delay. Any other status is returned to the caller unchanged.
func (c *Client) DoWithRetry(ctx context.Context, newReq RequestFactory) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := c.Do(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.New(ctxErr).
					Component("httpclient").
					Category(errors.CategoryCancellation).
					Build()
			}
			lastErr = errors.New(fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)).
				Component("httpclient").
				Category(errors.CategoryNetwork).
				NetworkContext(req.URL.String(), c.defaultTimeout).
				Context("attempt", attempt).
				Build()
			if attempt < c.maxAttempts {
				if err := SleepContext(ctx, c.retryDelay); err != nil {
					return nil, err
				}
			}
			continue
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		delay := c.retryAfter(resp)
		drainAndClose(resp)
		lastErr = errors.Newf("%s %s: rate limited (429)", req.Method, req.URL.Path).
			Component("httpclient").
			Category(errors.CategoryRateLimit).
			Context("attempt", attempt).
			Context("status_code", http.StatusTooManyRequests).
			Build()

		if attempt < c.maxAttempts {
			if err := SleepContext(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, errors.New(fmt.Errorf("giving up after %d attempts: %w", c.maxAttempts, lastErr)).
		Component("httpclient").
		Category(errors.CategoryRetry).
		Build()
}

// retryAfter reads the server-provided delay, in seconds, from the first
// configured header that parses.
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	for _, header := range c.resetHeaders {
		value := strings.TrimSpace(resp.Header.Get(header))
		if value == "" {
			continue
		}
		if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return c.retryDelay
}

// SleepContext sleeps for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ReadBody reads at most limit bytes of the body for diagnostics and closes it.
func ReadBody(resp *http.Response, limit int64) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, limit))
	return string(data)
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
