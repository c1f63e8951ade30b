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



package reembed

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// MaxBackoff caps the delay between two attempts.
const MaxBackoff = 30 * time.Second

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that another attempt cannot fix, such as a
// malformed response. RetryWithBackoff returns the unwrapped error at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryWithBackoff runs operation up to maxAttempts times, sleeping
// baseDelay, then twice that, and so on up to MaxBackoff between attempts.
// It returns the last error, or the context error if ctx ends first.
func RetryWithBackoff(ctx context.Context, operation func(ctx context.Context) error, maxAttempts int, baseDelay time.Duration) error {
	return retry(ctx, slog.Default(), operation, maxAttempts, baseDelay)
}

func retry(ctx context.Context, logger *slog.Logger, operation func(ctx context.Context) error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	delay := min(baseDelay, MaxBackoff)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug("embedding call succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == maxAttempts {
			logger.Warn("embedding call failed, giving up", "attempts", attempt, "err", err)
			return err
		}
		logger.Debug("embedding call failed, backing off", "attempt", attempt, "delay", delay, "err", err)

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, MaxBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
