// Package scraper runs ranking batches end to end.
//
// A Plan lists the batches of one invocation: a single date, a month, or the
// twelve months of a year. For every batch the scraper reads the listing
// pages through the cache and the request scheduler, filters them, hands the
// accepted items to the download manager, and flushes the cache once every
// item has a result.
//
// Usage:
//
//	plan, err := scraper.PlanFromConfig(cfg, time.Now())
//	if err != nil {
//	    return err
//	}
//	s, err := scraper.New(cfg, scraper.Deps{
//	    Client:    client,
//	    Scheduler: sched,
//	    Cache:     store,
//	})
//	if err != nil {
//	    return err
//	}
//	summary, err := s.Run(ctx, plan)
//
// Checkpoints:
//
// When output.checkpoint is enabled, the dates of every finished batch are
// recorded under a signature of mode, content, period and filter rules. A
// later run with Resume set skips those dates; ForceRestart discards them.
// The checkpoint is removed once the whole plan completes.
package scraper
