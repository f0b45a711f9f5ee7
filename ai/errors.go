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
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmbeddingUnavailable indicates no embedding could be produced for a text.
	// Callers degrade to keyword-only scoring.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrAuth indicates the provider rejected the credentials. Never retried.
	ErrAuth = errors.New("provider authentication failed")

	// ErrProviderConfig indicates invalid provider configuration. Never retried.
	ErrProviderConfig = errors.New("ai config")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("provider request timed out")

	// ErrProvider indicates any other provider failure.
	ErrProvider = errors.New("provider error")

	// ErrRetriesExhausted indicates a retryable failure persisted across every attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)

// RateLimitError reports a throttled request and how long the provider asked us to wait.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := ErrRateLimited.Error()
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrRateLimited and the underlying cause.
func (e *RateLimitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRateLimited}
	}
	return []error{ErrRateLimited, e.Err}
}

// IsRetryable reports whether err is a rate limit that has not yet exhausted its retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrRetriesExhausted)
}

// IsFatal reports whether err must abort the whole request: bad credentials,
// bad configuration, or a rate limit that outlasted every retry.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrProviderConfig) ||
		errors.Is(err, ErrRetriesExhausted)
}

// RetryAfter returns the provider-requested wait carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// Classify maps an error from a provider client onto the error kinds above.
// Errors that already carry a kind, and context cancellation, pass through unchanged.
// Clients that only expose status codes through messages are classified by
// inspecting the message text.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	for _, kind := range []error{ErrAuth, ErrProviderConfig, ErrRateLimited, ErrTimeout, ErrProvider, ErrEmbeddingUnavailable} {
		if errors.Is(err, kind) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "401", "403", "unauthorized", "forbidden", "invalid api key", "incorrect api key",
		"api key not valid", "permission denied", "authentication"):
		return fmt.Errorf("%w: %w", ErrAuth, err)
	case containsAny(msg, "429", "rate limit", "too many requests", "quota", "resource_exhausted", "resource exhausted"):
		return &RateLimitError{Err: err}
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case strings.Contains(msg, "model") && containsAny(msg, "not found", "does not exist"):
		return fmt.Errorf("%w: %w", ErrProviderConfig, err)
	default:
		return fmt.Errorf("%w: %w", ErrProvider, err)
	}
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
