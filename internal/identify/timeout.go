package identify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a decode or OCR call outlives its budget
var ErrTimeout = errors.New("identification call timed out")

// callWithTimeout runs fn in its own goroutine and gives up after d. The
// goroutine is left to finish on its own; fn receives a context that is
// cancelled when the caller stops waiting.
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome{zero, fmt.Errorf("identification call panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}
