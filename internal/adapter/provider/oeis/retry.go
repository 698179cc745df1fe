package oeis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/heartmarshall/oeisdb/internal/metrics"
)

const maxRetryDelay = 30 * time.Second

// doWithRetry executes a GET, retrying network errors, 429 and 5xx up to
// maxRetries times with exponential backoff. A Retry-After header longer than
// the backoff wins. The last response or error is returned.
func (c *Client) doWithRetry(ctx context.Context, reqURL string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		started := time.Now()
		resp, err := c.httpClient.Do(req)
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		metrics.RecordHTTP(status, err, time.Since(started))

		if !shouldRetry(resp, err) || attempt >= c.maxRetries || ctx.Err() != nil {
			if err != nil {
				c.log.ErrorContext(ctx, "oeis request failed",
					slog.String("url", reqURL),
					slog.Int("attempts", attempt+1),
					slog.String("error", err.Error()),
				)
				return nil, fmt.Errorf("request failed: %w", err)
			}
			return resp, nil
		}

		delay := backoff(c.baseDelay, attempt)
		reason := "network error"
		if resp != nil {
			reason = "status " + strconv.Itoa(resp.StatusCode)
			if ra := parseRetryAfter(resp.Header, time.Now()); ra > delay {
				delay = ra
			}
			resp.Body.Close()
		}

		c.log.WarnContext(ctx, "oeis retry",
			slog.String("url", reqURL),
			slog.String("reason", reason),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
		)

		if !sleepCtx(ctx, delay) {
			return nil, fmt.Errorf("request failed: %w", ctx.Err())
		}
	}
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// backoff returns base * 2^attempt capped at maxRetryDelay.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

// parseRetryAfter reads delta-seconds or an HTTP date. Anything else is 0.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}

	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return min(time.Duration(secs)*time.Second, maxRetryDelay)
	}

	if t, err := http.ParseTime(ra); err == nil {
		if d := t.Sub(now); d > 0 {
			return min(d, maxRetryDelay)
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
