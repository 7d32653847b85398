package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// AuthError indicates invalid or missing credentials. Never retried.
type AuthError struct {
	Provider   string
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// RateLimitError indicates the provider throttled the request.
// RetryAfter carries the provider-supplied backoff hint when present.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Message)
}

// ConnectionError indicates a network failure or timeout reaching the provider.
type ConnectionError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection error: %s", e.Provider, e.Message)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProviderError is a generic provider-side failure that is neither an
// auth nor a rate-limit nor a connectivity problem.
type ProviderError struct {
	Provider   string
	Message    string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsRetryable reports whether err is transient: rate limiting and
// connectivity problems are expected to succeed on retry.
func IsRetryable(err error) bool {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsProviderError reports whether err is a generic provider failure,
// whose retry policy is left to the caller's configuration.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// RetryAfterHint returns the provider-supplied backoff hint, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}

// normalizeError converts transport-level failures into the provider
// error taxonomy. Provider-specific HTTP errors are mapped by each
// client before reaching here.
func normalizeError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ConnectionError{Provider: provider, Message: "request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ConnectionError{Provider: provider, Message: netErr.Error(), Err: err}
	}
	return err
}

// errorFromStatus maps an HTTP status code to the taxonomy.
func errorFromStatus(provider string, status int, message string, header http.Header) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Provider: provider, Message: message, StatusCode: status}
	case status == http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if header != nil {
			retryAfter = parseRetryAfter(header.Get("Retry-After"))
		}
		return &RateLimitError{Provider: provider, Message: message, RetryAfter: retryAfter, StatusCode: status}
	case status == http.StatusRequestTimeout || status >= 500:
		return &ConnectionError{
			Provider: provider,
			Message:  fmt.Sprintf("status %d: %s", status, message),
		}
	default:
		return &ProviderError{Provider: provider, Message: message, StatusCode: status}
	}
}

// parseRetryAfter parses a Retry-After header value in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
