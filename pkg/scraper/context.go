package scraper

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"pixivrank/internal/downloader"
	"pixivrank/pkg/cache"
)

// RunContext is the mutable state of one Run: its id, running totals and the
// reporter. It is created by Run and passed down explicitly.
type RunContext struct {
	ID        string
	StartedAt time.Time

	reporter Reporter

	mu     sync.Mutex
	totals downloader.Summary
}

func newRunContext(r Reporter) *RunContext {
	if r == nil {
		r = nopReporter{}
	}
	return &RunContext{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		reporter:  r,
	}
}

// Totals returns the results counted so far across all batches
func (rc *RunContext) Totals() downloader.Summary {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.totals
}

func (rc *RunContext) batchStarted(b Batch, dates []string, jobs int) {
	rc.mu.Lock()
	rc.totals.Total += jobs
	rc.mu.Unlock()
	rc.reporter.BatchStarted(b.Label, dates, jobs)
}

func (rc *RunContext) itemFinished(res downloader.Result) {
	rc.mu.Lock()
	switch {
	case res.Skipped:
		rc.totals.Skipped++
	case res.Aborted:
		rc.totals.Aborted++
	case res.Status == cache.StatusFinished:
		rc.totals.Completed++
	default:
		rc.totals.Failed++
	}
	rc.mu.Unlock()
	rc.reporter.ItemFinished(res)
}

func (rc *RunContext) batchFinished(b Batch, s downloader.Summary) {
	rc.reporter.BatchFinished(b.Label, s)
}
