package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrMalformedLine   = errors.New("malformed entry")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidEventID  = errors.New("invalid event id")
	ErrPersistence     = errors.New("persistence failure")
	ErrCycleDetected   = errors.New("cycle detected in event hierarchy")
	ErrTimelineTooDeep = errors.New("timeline exceeds maximum depth")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrInternal        = errors.New("internal error")
	ErrTimeout         = errors.New("operation timed out")
	ErrUnavailable     = errors.New("dependency unavailable")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Is and As are re-exported so callers importing this package under the
// name "errors" keep access to the standard helpers.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrMalformedLine),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidEventID):
		return http.StatusBadRequest
	case errors.Is(err, ErrCycleDetected), errors.Is(err, ErrTimelineTooDeep):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
