package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrServiceUnavailable, "engine gone").
		WithCause(root).
		WithHTTPStatus(503).
		WithURL("http://localhost:12000/npl/demo/Iou/").
		WithResponseBody("Service Unavailable").
		WithAttempt(4).
		WithRetryable(true)

	if GetErrorCode(err) != ErrServiceUnavailable {
		t.Fatalf("expected code %s, got %s", ErrServiceUnavailable, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
	if err.Attempt != 4 {
		t.Fatalf("expected attempt 4, got %d", err.Attempt)
	}
}

func TestError_HelpersThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrAuthExpired, "token rejected").WithHTTPStatus(401)
	wrapped := fmt.Errorf("create protocol: %w", inner)

	if !IsErrorCode(wrapped, ErrAuthExpired) {
		t.Fatalf("expected AUTH_EXPIRED through wrapping")
	}
	e, ok := AsError(wrapped)
	if !ok {
		t.Fatalf("expected AsError to find *Error")
	}
	if e.HTTPStatus != 401 {
		t.Fatalf("expected status 401, got %d", e.HTTPStatus)
	}
	if IsRetryable(wrapped) {
		t.Fatalf("AUTH_EXPIRED should not be retryable by default")
	}
}

func TestError_NonStructured(t *testing.T) {
	t.Parallel()

	plain := errors.New("plain")
	if IsRetryable(plain) {
		t.Fatalf("plain errors are not retryable")
	}
	if GetErrorCode(plain) != "" {
		t.Fatalf("plain errors have no code")
	}
}
