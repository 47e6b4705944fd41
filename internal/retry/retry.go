// Package retry implements the rate-limit policy shared by the embedding and
// generation clients: rate-limited calls are retried with the same payload
// until they succeed, pausing only the calling goroutine between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// ErrRateLimited marks an error as a transient quota rejection.
var ErrRateLimited = errors.New("rate limited")

// Strategy controls how the cooldown evolves across consecutive rate limits.
type Strategy string

const (
	Fixed       Strategy = "fixed"
	Exponential Strategy = "exponential"
)

// Policy retries rate-limited calls forever. Any other error is returned
// immediately.
type Policy struct {
	Cooldown    time.Duration
	Strategy    Strategy
	MaxCooldown time.Duration

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *zap.Logger
}

// IsRateLimited reports whether err is an HTTP 429 / RESOURCE_EXHAUSTED rejection.
// Typed SDK errors are checked by status code; the error text is a fallback
// for wrappers that flatten them.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusTooManyRequests
	}
	msg := err.Error()
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "Error 429") ||
		strings.Contains(msg, "429 Too Many Requests") ||
		strings.Contains(msg, "status 429")
}

// Delay returns the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Cooldown
	if base <= 0 {
		base = 65 * time.Second
	}
	if p.Strategy != Exponential || attempt <= 1 {
		return base
	}

	limit := p.MaxCooldown
	if limit <= 0 {
		limit = base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return d
}

// Do runs fn until it returns nil or a non-rate-limit error.
// ctx cancellation during a cooldown aborts the retry.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRateLimited(err) {
			return err
		}

		d := p.Delay(attempt)
		logger.Warn("rate limited, cooling down before retrying same payload",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("cooldown", d),
			zap.Error(err))

		if serr := sleep(ctx, d); serr != nil {
			return fmt.Errorf("%s: retry aborted while rate limited: %w", op, serr)
		}
	}
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func timerSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
