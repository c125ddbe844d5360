// Package scheduler paces every outbound pixiv request.
//
// A Scheduler owns a FIFO queue drained by a single dispatcher goroutine, so at
// most one request is in flight at any time. Each task carries a weight (1 for
// API calls, 2 for binary transfers) that accumulates into a running counter:
//
//   - a fixed interval separates the end of one task from the start of the next
//   - whenever the counter reaches the next pause point, dispatch is suspended
//     for the pause duration and the pause point moves up by the threshold
//   - the pause duration grows by a fixed increment every time the pause point
//     passes another escalation step
//   - a run of consecutive rate-limit failures trips a breaker after which every
//     task is rejected with errors.ErrCircuitOpen
//
// Usage:
//
//	s := scheduler.New(cfg.Scheduler, log)
//	s.Start()
//	defer s.Stop()
//
//	err := s.Do(ctx, scheduler.WeightAPI, func(ctx context.Context) error {
//		page, err = client.Ranking(ctx, date, mode, content, 1)
//		return err
//	})
package scheduler
