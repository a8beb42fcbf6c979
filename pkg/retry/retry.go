// Package retry provides a bounded retry-with-delay loop, cancelable through
// a context.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when every attempt reported not-done without error.
var ErrExhausted = errors.New("retry attempts exhausted")

// Do calls fn up to attempts times, sleeping delay between calls. fn reports
// done=true to stop successfully; a non-nil error stops immediately. Context
// cancellation aborts the wait between attempts and returns ctx.Err().
func Do(ctx context.Context, attempts int, delay time.Duration, fn func() (done bool, err error)) error {
	for i := 0; i < attempts; i++ {
		done, err := fn()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ErrExhausted
}
