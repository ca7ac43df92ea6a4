package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrQuotaExceeded   = errors.New("daily photo limit reached")
	ErrMealNotFound    = errors.New("meal not found")
	ErrMealClosed      = errors.New("meal is no longer accepting photos")
	ErrNotFound        = errors.New("not found")
	ErrForbiddenTarget = errors.New("target belongs to another user")
	ErrTokenConflict   = errors.New("idempotency key already used by another user")
)

// ErrImageTooLarge is an ErrInvalidInput for uploads over the byte limit.
var ErrImageTooLarge = fmt.Errorf("%w: image too large", ErrInvalidInput)
