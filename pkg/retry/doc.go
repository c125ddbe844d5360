// Package retry re-runs failed pixiv transfers and lock attempts.
//
// By default only transport errors and integrity errors (short bodies) are
// retried. A 429 is never retried here; the scheduler's breaker owns it.
//
//	err := retry.Do(ctx, retry.Policy{Attempts: 3, Backoff: retry.Linear{Step: 2 * time.Second}}, func(ctx context.Context) error {
//		return fetchOnce(ctx)
//	})
package retry
