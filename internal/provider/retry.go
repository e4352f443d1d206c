// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff.
// The delay doubles each attempt: 500 ms, 1 s, 2 s, 4 s. Tests override
// this to avoid real sleeps.
var RetryBaseDelay = 500 * time.Millisecond

const defaultMaxRetries = 3

// Retry executes call and retries retryable failures with exponential
// backoff, up to maxRetries additional attempts (default 3 when
// maxRetries is 0). An empty-result failure is retried exactly once
// regardless of remaining budget, then surfaced as permanent. If the
// context is cancelled during a backoff wait, Retry returns ctx.Err().
// The last error is returned after the budget is exhausted.
func Retry(ctx context.Context, maxRetries int, call func(context.Context) error) error {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	emptyRetried := false
	for attempt := 0; ; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}

		retryable := Retryable(err)
		if IsKind(err, KindEmptyResult) {
			if emptyRetried {
				return err
			}
			emptyRetried = true
			retryable = true
		}
		if !retryable || attempt >= maxRetries {
			return err
		}

		backoff := time.Duration(1<<attempt) * RetryBaseDelay
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
