package recognition

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"meal-photo-backend/internal/models"
)

// Error is a classified recognition failure. Code is one of the stable photo
// error codes in models.
type Error struct {
	Code      string
	Message   string
	retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	return e.retryable
}

func retryableError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, retryable: true, Err: err}
}

func permanentError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsRetryable reports whether err is a retryable recognition failure.
func IsRetryable(err error) bool {
	var recErr *Error
	return errors.As(err, &recErr) && recErr.Retryable()
}

// AsError converts any error into a classified *Error. Unclassified errors
// become non-retryable INTERNAL failures.
func AsError(err error) *Error {
	var recErr *Error
	if errors.As(err, &recErr) {
		return recErr
	}
	return permanentError(models.ErrCodeInternal, "recognition failed", err)
}

// classifyTransport maps a failed round trip to the taxonomy: timeouts and
// network failures are retryable.
func classifyTransport(err error) *Error {
	if errors.Is(err, context.Canceled) {
		return permanentError(models.ErrCodeInternal, "recognition cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retryableError(models.ErrCodeRecognitionTimeout, "recognition timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retryableError(models.ErrCodeRecognitionTimeout, "recognition timed out", err)
	}
	return retryableError(models.ErrCodeNetwork, "recognition service unreachable", err)
}

// classifyStatus maps a non-2xx proxy response. 4xx responses are never
// retried.
func classifyStatus(status int, body string) *Error {
	msg := fmt.Sprintf("status %d, body: %s", status, body)
	switch {
	case status == http.StatusTooManyRequests:
		return permanentError(models.ErrCodeUpstreamQuota, msg, nil)
	case status == http.StatusBadRequest, status == http.StatusUnsupportedMediaType, status == http.StatusRequestEntityTooLarge:
		return permanentError(models.ErrCodeInvalidImage, msg, nil)
	case status == http.StatusUnprocessableEntity:
		return permanentError(models.ErrCodeContentRejected, msg, nil)
	case status == http.StatusGatewayTimeout, status == http.StatusRequestTimeout:
		return retryableError(models.ErrCodeRecognitionTimeout, msg, nil)
	case status >= 500:
		return retryableError(models.ErrCodeUpstreamUnavailable, msg, nil)
	default:
		return permanentError(models.ErrCodeInternal, msg, nil)
	}
}
