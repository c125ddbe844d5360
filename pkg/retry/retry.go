package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "pixivrank/pkg/errors"
	"pixivrank/pkg/logger"
)

// Policy says how often and when an operation is tried again
type Policy struct {
	// Attempts is the total number of tries, the first included. Values
	// below 1 mean a single try.
	Attempts int
	Backoff  Backoff
	// RetryIf defaults to Retryable
	RetryIf func(error) bool
	// OnRetry runs before each pause
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// Retryable accepts typed transport and integrity failures. HTTP statuses,
// 429 included, are final for the request that produced them.
func Retryable(err error) bool {
	var e *errs.Error
	if errors.As(err, &e) {
		return errs.IsRetryable(e.Type)
	}
	return false
}

// Do runs op until it succeeds, returns an error RetryIf rejects, or the
// attempts are used up. There is no pause after the last attempt.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = Retryable
	}
	log := p.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("Succeeded after retry", map[string]interface{}{"attempt": attempt})
			}
			return nil
		}

		if !retryIf(err) {
			return err
		}
		if attempt == attempts {
			if attempts > 1 {
				return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
			}
			return err
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff.Delay(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":  attempt,
			"of":       attempts,
			"error":    err.Error(),
			"delay_ms": delay.Milliseconds(),
		})

		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}
