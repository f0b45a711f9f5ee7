// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds how an operation is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt; it doubles on each retry.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsRetryable, which only retries rate limits.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries rate limits three times starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Retryable:   IsRetryable,
	}
}

// Retry runs operation until it succeeds, fails with a non-retryable error,
// or runs out of attempts. The wait between attempts is BaseDelay doubled per
// retry, raised to any RetryAfter the error carries.
//
// When attempts run out the returned error wraps both ErrRetriesExhausted and
// the last failure.
func Retry(ctx context.Context, policy RetryPolicy, operation func(ctx context.Context) error) error {
	lastErr, exhausted := retry(ctx, policy, operation)
	if exhausted {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, policy.MaxAttempts, lastErr)
	}
	return lastErr
}

// RetryWithBackoff retries an operation with exponential backoff.
// Every error except a fatal one (see IsFatal) is retried.
// maxAttempts: maximum number of attempts (must be > 0)
// baseDelay: base delay between retries (doubles on each retry)
// Returns the error from the last attempt if all attempts fail.
func RetryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	policy := RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Retryable:   func(err error) bool { return !IsFatal(err) },
	}
	lastErr, _ := retry(ctx, policy, func(context.Context) error { return operation() })
	return lastErr
}

func retry(ctx context.Context, policy RetryPolicy, operation func(ctx context.Context) error) (error, bool) {
	if policy.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts, false
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err(), false
		default:
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil, false
		}

		if !retryable(lastErr) {
			return lastErr, false
		}

		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", policy.MaxAttempts, "error", lastErr)

		// Don't sleep after the last attempt
		if attempt == policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(backoff(policy, attempt, lastErr))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err(), false
		case <-timer.C:
		}
	}

	return lastErr, true
}

// backoff computes baseDelay * 2^(attempt-1), raised to the error's RetryAfter and capped by MaxDelay.
func backoff(policy RetryPolicy, attempt int, err error) time.Duration {
	delay := policy.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if after := RetryAfter(err); after > delay {
		delay = after
	}
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}
