package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"constellation/internal/services"
)

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, summarizePayloadSnippet(e.Body))
}

type emptyContentError struct {
	Op           string
	FinishReason string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("%s: empty content (finish_reason=%q, response_snippet=%s)", e.Op, e.FinishReason, e.Snippet)
}

type decodeError struct {
	err     error
	snippet string
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("llm request: decode response: %v (snippet: %s)", e.err, e.snippet)
}

func (e *decodeError) Unwrap() error { return e.err }

type apiError struct {
	message string
}

func (e *apiError) Error() string { return "llm request: api error: " + e.message }

// classify tags err with the services marker that matches its retry semantics.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		code := strconv.Itoa(statusErr.StatusCode)
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			wrapped := services.Wrap(services.ErrRateLimited, "llm", op, "http "+code, err)
			if statusErr.RetryAfter > 0 {
				return &services.RetryAfterError{Delay: statusErr.RetryAfter, Err: wrapped}
			}
			return wrapped
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "llm", op, "http "+code, err)
		case statusErr.StatusCode == http.StatusUnauthorized,
			statusErr.StatusCode == http.StatusForbidden,
			statusErr.StatusCode == http.StatusPaymentRequired:
			return services.Wrap(services.ErrConfiguration, "llm", op, "http "+code, err)
		default:
			return services.Wrap(services.ErrRejected, "llm", op, "http "+code, err)
		}
	}

	var empty *emptyContentError
	if errors.As(err, &empty) {
		return services.Wrap(services.ErrTransient, "llm", op, "empty completion", err)
	}
	var decodeErr *decodeError
	if errors.As(err, &decodeErr) {
		return services.Wrap(services.ErrTransient, "llm", op, "undecodable response", err)
	}
	var api *apiError
	if errors.As(err, &api) {
		return services.Wrap(services.ErrRejected, "llm", op, "provider error", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "llm", op, "deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return services.Wrap(services.ErrTimeout, "llm", op, "network timeout", err)
		}
		return services.Wrap(services.ErrTransient, "llm", op, "network error", err)
	}
	return services.Wrap(services.ErrTransient, "llm", op, "request failed", err)
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := defaultRetryBaseDelay
	maxDelay := defaultRetryMaxDelay
	if c != nil {
		if c.retryBaseDelay >= 0 {
			base = c.retryBaseDelay
		}
		if c.retryMaxDelay > 0 {
			maxDelay = c.retryMaxDelay
		}
	}
	if base <= 0 {
		return 0
	}

	retryCount := attempt // attempt is 1-based, delay is for the next attempt.
	if retryCount <= 0 {
		retryCount = 1
	}

	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < retryCount; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := defaultRetryMaxDelay
	if c != nil && c.retryMaxDelay > 0 {
		maxDelay = c.retryMaxDelay
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
