package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
)

// WithTimeout bounds fn to timeout. fn receives the bounded context; when it
// overruns, WithTimeout returns without waiting for it and the error matches
// both apperrors.ErrTimeout and context.DeadlineExceeded. A non-positive
// timeout runs fn unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, apperrors.ErrTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(ctx) }()

	var err error
	select {
	case err = <-result:
		if err == nil {
			return nil
		}
	case <-ctx.Done():
		err = context.Cause(ctx)
	}
	if context.Cause(ctx) == apperrors.ErrTimeout {
		return fmt.Errorf("%s: %w: %w after %v", name, apperrors.ErrTimeout, context.DeadlineExceeded, timeout)
	}
	return fmt.Errorf("%s: %w", name, err)
}
