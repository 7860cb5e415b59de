// Package reliability classifies failures into retryable and terminal so
// callers can surface the right behavior without inspecting provider guts.
package reliability

import (
	"errors"
	"fmt"
	"time"
)

// ErrTransient marks a temporarily unreachable collaborator (model or store).
// The core never auto-retries; the caller decides.
var ErrTransient = errors.New("transient provider failure")

// MarkTransient wraps err so IsTransient recognizes it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
