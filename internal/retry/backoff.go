package retry

import (
	"context"
	"time"
)

// ExponentialBackoff returns delay based on attempt number.
// The delay doubles with each attempt: base * 2^attempt
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return base * (1 << attempt)
}

// CappedBackoff is ExponentialBackoff limited to max.
func CappedBackoff(attempt int, base, max time.Duration) time.Duration {
	d := ExponentialBackoff(attempt, base)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// Do calls fn up to attempts times, sleeping with exponential backoff capped
// at max (uncapped when max is zero) between failures. It returns the last
// error, or ctx.Err() if ctx ends while waiting.
func Do(ctx context.Context, attempts int, base, max time.Duration, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay(attempt, base, max)):
		}
	}
	return nil
}

func delay(attempt int, base, max time.Duration) time.Duration {
	if max <= 0 {
		return ExponentialBackoff(attempt, base)
	}
	return CappedBackoff(attempt, base, max)
}
