package retry

import (
	"context"
	"time"
)

// Backoff maps a failed attempt (1-based) to the pause before the next one
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Linear waits Step × attempt, capped at Max when Max is set.
type Linear struct {
	Step time.Duration
	Max  time.Duration
}

func (l Linear) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := l.Step * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// sleep waits for d or until ctx ends
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
