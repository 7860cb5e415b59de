package reliability

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMarkTransient(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := MarkTransient(base)

	if !IsTransient(wrapped) {
		t.Fatalf("IsTransient(marked) = false")
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("marked error lost its cause")
	}
	if IsTransient(base) {
		t.Fatalf("IsTransient(unmarked) = true")
	}
	if MarkTransient(nil) != nil {
		t.Fatalf("MarkTransient(nil) != nil")
	}

	rewrapped := fmt.Errorf("chat turn: %w", wrapped)
	if !IsTransient(rewrapped) {
		t.Fatalf("IsTransient lost through wrapping")
	}
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = false", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = true", code)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Second

	if got := ExponentialBackoff(0, base, cap); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(2, base, cap); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want 400ms", got)
	}
	if got := ExponentialBackoff(10, base, cap); got != cap {
		t.Fatalf("attempt 10 = %v, want cap %v", got, cap)
	}
}
