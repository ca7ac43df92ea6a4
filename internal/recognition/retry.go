package recognition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meal-photo-backend/internal/models"
)

// Retrier retries retryable failures with exponential backoff. A positive
// AttemptTimeout bounds every attempt on its own.
type Retrier struct {
	MaxAttempts    int
	Backoffs       []time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetrier allows 3 attempts of at most attemptTimeout each, with 1s
// and 2s waits between them.
func DefaultRetrier(attemptTimeout time.Duration) Retrier {
	return Retrier{
		MaxAttempts:    3,
		Backoffs:       []time.Duration{1 * time.Second, 2 * time.Second},
		AttemptTimeout: attemptTimeout,
	}
}

// RetryWithBackoff runs fn until it succeeds, fails permanently, the attempt
// budget is spent or ctx ends. The last error stays wrapped.
func (r Retrier) RetryWithBackoff(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i < r.MaxAttempts; i++ {
		err := r.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if i == r.MaxAttempts-1 {
			break
		}

		var wait time.Duration
		if len(r.Backoffs) > 0 {
			wait = r.Backoffs[min(i, len(r.Backoffs)-1)]
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", r.MaxAttempts, lastErr)
}

func (r Retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.AttemptTimeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.AttemptTimeout)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return retryableError(models.ErrCodeRecognitionTimeout,
			fmt.Sprintf("recognition exceeded %s", r.AttemptTimeout), err)
	}
	return err
}

type retrying struct {
	next    Recognizer
	retrier Retrier
}

// WithRetry applies the retrier to every Recognize call.
func WithRetry(next Recognizer, retrier Retrier) Recognizer {
	return &retrying{next: next, retrier: retrier}
}

func (r *retrying) Recognize(ctx context.Context, req Request) (*Result, error) {
	var result *Result
	err := r.retrier.RetryWithBackoff(ctx, func(ctx context.Context) error {
		var err error
		result, err = r.next.Recognize(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
