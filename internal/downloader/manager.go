// Package downloader resolves accepted ranking items to image URLs, transfers
// them through the scheduler with retries, and records each terminal outcome
// in the cache and the ledger.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"pixivrank/pkg/cache"
	errs "pixivrank/pkg/errors"
	"pixivrank/pkg/filter"
	"pixivrank/pkg/ledger"
	"pixivrank/pkg/logger"
	"pixivrank/pkg/pixiv"
	"pixivrank/pkg/ranking"
	"pixivrank/pkg/retry"
	"pixivrank/pkg/scheduler"
	"pixivrank/pkg/storage"
	"pixivrank/pkg/ugoira"
)

// Client is the part of the pixiv client the manager needs
type Client interface {
	IllustDetail(ctx context.Context, id int64) (*pixiv.IllustDetail, error)
	IllustPages(ctx context.Context, id int64) ([]pixiv.IllustPage, error)
	UgoiraMeta(ctx context.Context, id int64) (*pixiv.UgoiraMeta, error)
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Submitter runs tasks through the request scheduler
type Submitter interface {
	Do(ctx context.Context, weight int, task scheduler.Task) error
	Tripped() bool
}

// StatusStore records item status in the listing cache
type StatusStore interface {
	StatusOf(date, mode, content string, id int64) (cache.Status, bool)
	UpdateStatus(date, mode, content string, id int64, status cache.Status) error
	Reopen(date, mode, content string, id int64) error
}

// Animator assembles an ugoira into dest
type Animator interface {
	Assemble(ctx context.Context, id int64, dest string) error
}

// Job is one accepted item and the batch directory it belongs in
type Job struct {
	ranking.Candidate
	Layout storage.Layout
}

// Result is the outcome of one job
type Result struct {
	Job      Job
	Status   cache.Status
	Kind     string
	Files    int
	Skipped  bool
	Aborted  bool
	Error    error
	Duration time.Duration
}

// Summary aggregates the results of one Run
type Summary struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	// Aborted counts jobs cut short by cancellation or the circuit breaker;
	// they are left undownloaded
	Aborted int
}

func (s *Summary) add(r Result) {
	switch {
	case r.Skipped:
		s.Skipped++
	case r.Aborted:
		s.Aborted++
	case r.Status == cache.StatusFinished:
		s.Completed++
	default:
		s.Failed++
	}
}

// Options control resolution and retries
type Options struct {
	Mode          string
	Content       string
	Workers       int
	SingleImage   bool
	RetryFailed   bool
	RetryAttempts int
	RetryDelay    time.Duration
	Ugoira        bool
	// TempDir stages ugoira archives; empty uses the system temp directory
	TempDir string
}

// Manager downloads jobs
type Manager struct {
	client   Client
	sched    Submitter
	statuses StatusStore
	files    *storage.Manager
	ledger   *ledger.Writer
	anim     Animator
	opts     Options
	log      logger.Logger
	onResult func(Result)
}

// NewManager wires a manager. Ugoira items are assembled when opts.Ugoira is
// set and otherwise saved as their first frame.
func NewManager(client Client, sched Submitter, statuses StatusStore, files *storage.Manager, lw *ledger.Writer, opts Options, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}

	m := &Manager{
		client:   client,
		sched:    sched,
		statuses: statuses,
		files:    files,
		ledger:   lw,
		opts:     opts,
		log:      log.WithField("component", "downloader"),
	}
	if opts.Ugoira {
		m.anim = ugoira.NewAssembler(client, sched, m, files, opts.TempDir, log)
	}
	return m
}

// OnResult registers a callback invoked for every finished job, from the
// goroutine collecting results
func (m *Manager) OnResult(fn func(Result)) {
	m.onResult = fn
}

// Run processes jobs in order on the worker pool and returns once every job
// has a result
func (m *Manager) Run(ctx context.Context, jobs []Job) Summary {
	summary := Summary{Total: len(jobs)}

	pool := NewWorkerPool(ctx, m.opts.Workers, m.process, m.log)
	pool.Start()

	var g errgroup.Group
	g.Go(func() error {
		for res := range pool.Results() {
			summary.add(res)
			if m.onResult != nil {
				m.onResult(res)
			}
		}
		return nil
	})

	submitted := 0
	for _, job := range jobs {
		if err := pool.Submit(job); err != nil {
			m.log.WithError(err).Warn("Stopped submitting downloads")
			break
		}
		submitted++
	}
	pool.Stop()
	_ = g.Wait()

	summary.Aborted += len(jobs) - submitted
	return summary
}

// Fetch transfers url to path through the scheduler at download weight,
// retrying transport and integrity failures with linear backoff. The partial
// file of a failed attempt is removed before the next one starts.
func (m *Manager) Fetch(ctx context.Context, url, path string) error {
	return m.transfer(ctx, url, path, m.files.Save)
}

// Stage is Fetch for scratch files; they stay out of the saved counters
func (m *Manager) Stage(ctx context.Context, url, path string) error {
	return m.transfer(ctx, url, path, func(path string, fill func(io.Writer) error) error {
		_, err := storage.WriteAtomic(path, fill)
		return err
	})
}

func (m *Manager) transfer(ctx context.Context, url, path string, save func(string, func(io.Writer) error) error) error {
	policy := retry.Policy{
		Attempts: m.opts.RetryAttempts,
		Backoff:  retry.Linear{Step: m.opts.RetryDelay},
		Logger:   m.log.WithField("url", url),
	}

	return retry.Do(ctx, policy, func(ctx context.Context) error {
		return m.sched.Do(ctx, scheduler.WeightDownload, func(ctx context.Context) error {
			return save(path, func(w io.Writer) error {
				_, err := m.client.Download(ctx, url, w)
				return err
			})
		})
	})
}

func (m *Manager) process(ctx context.Context, job Job, workerID int) Result {
	start := time.Now()
	res := Result{Job: job}

	if m.shouldSkip(job) {
		res.Skipped = true
		m.log.DebugWithFields("Already processed, skipping", map[string]interface{}{
			"illust_id": job.ID,
			"worker_id": workerID,
		})
		return res
	}

	if ctx.Err() != nil || m.sched.Tripped() {
		res.Aborted = true
		res.Error = ctx.Err()
		if res.Error == nil {
			res.Error = errs.ErrCircuitOpen
		}
		return res
	}

	res.Kind, res.Files, res.Error = m.download(ctx, job)
	res.Duration = time.Since(start)

	if res.Error != nil && aborted(ctx, res.Error) {
		res.Aborted = true
		m.log.WithError(res.Error).DebugWithFields("Download aborted", map[string]interface{}{
			"illust_id": job.ID,
		})
		return res
	}

	res.Status = cache.StatusFinished
	if res.Error != nil {
		res.Status = cache.StatusFailed
	}
	logger.LogDownload(m.log, job.ID, res.Kind, res.Files, res.Error)
	m.record(job, res.Status)
	return res
}

// shouldSkip consults the ledger, then the cache. A failed item is reopened
// when failed items are retried.
func (m *Manager) shouldSkip(job Job) bool {
	if m.ledger.Index().ShouldSkip(job.ID, m.opts.RetryFailed) {
		return true
	}

	status, known := m.statuses.StatusOf(job.Date, m.opts.Mode, m.opts.Content, job.ID)
	if !known || status != cache.StatusFailed {
		return false
	}
	if !m.opts.RetryFailed {
		return true
	}
	if err := m.statuses.Reopen(job.Date, m.opts.Mode, m.opts.Content, job.ID); err != nil {
		m.log.WithError(err).WarnWithFields("Failed to reopen item", map[string]interface{}{
			"illust_id": job.ID,
		})
	}
	return false
}

// download resolves the item and transfers every file. It returns the kind of
// work, the number of files written and the first failure.
func (m *Manager) download(ctx context.Context, job Job) (string, int, error) {
	var detail *pixiv.IllustDetail
	err := m.sched.Do(ctx, scheduler.WeightAPI, func(ctx context.Context) error {
		var err error
		detail, err = m.client.IllustDetail(ctx, job.ID)
		return err
	})
	if err != nil {
		return "detail", 0, fmt.Errorf("illust %d detail: %w", job.ID, err)
	}

	if filter.ContentType(detail.IllustType) == filter.TypeUgoira && m.anim != nil {
		if err := m.anim.Assemble(ctx, job.ID, job.Layout.Ugoira(job.Blocked, job.ID)); err != nil {
			return "ugoira", 0, err
		}
		return "ugoira", 1, nil
	}

	if detail.PageCount <= 1 || m.opts.SingleImage {
		url := detail.URLs.Best()
		if url == "" {
			return "single", 0, errs.New(errs.ErrorTypeParsing, 0, "illust %d has no image url", job.ID)
		}
		path := job.Layout.Single(job.Blocked, job.ID, pixiv.ExtFromURL(url))
		if err := m.fetchOnce(ctx, url, path); err != nil {
			return "single", 0, err
		}
		return "single", 1, nil
	}

	var pages []pixiv.IllustPage
	err = m.sched.Do(ctx, scheduler.WeightAPI, func(ctx context.Context) error {
		var err error
		pages, err = m.client.IllustPages(ctx, job.ID)
		return err
	})
	if err != nil {
		return "multi", 0, fmt.Errorf("illust %d pages: %w", job.ID, err)
	}
	if len(pages) == 0 {
		return "multi", 0, errs.New(errs.ErrorTypeParsing, 0, "illust %d has no pages", job.ID)
	}

	written := 0
	for i, p := range pages {
		url := p.URLs.Best()
		path := job.Layout.Multi(job.Blocked, job.ID, len(pages), i, pixiv.ExtFromURL(url))
		if err := m.fetchOnce(ctx, url, path); err != nil {
			return "multi", written, err
		}
		written++
	}
	return "multi", written, nil
}

// fetchOnce skips files that a previous run already completed
func (m *Manager) fetchOnce(ctx context.Context, url, path string) error {
	if m.files.Exists(path) {
		return nil
	}
	return m.Fetch(ctx, url, path)
}

func (m *Manager) record(job Job, status cache.Status) {
	err := m.statuses.UpdateStatus(job.Date, m.opts.Mode, m.opts.Content, job.ID, status)
	if err != nil && !errors.Is(err, cache.ErrItemNotFound) {
		m.log.WithError(err).WarnWithFields("Failed to update cached status", map[string]interface{}{
			"illust_id": job.ID,
		})
	}

	entry := ledger.Entry{
		Date:   job.Date,
		Page:   job.Page,
		Rank:   job.Rank,
		ID:     job.ID,
		Tags:   job.Tags,
		Reason: job.Reason,
		Status: status,
	}
	if err := m.ledger.Append(job.Layout.Dir(job.Blocked), entry); err != nil {
		m.log.WithError(err).ErrorWithFields("Failed to append ledger entry", map[string]interface{}{
			"illust_id": job.ID,
		})
	}
}

// aborted reports whether err came from cancellation or the circuit breaker
// rather than from the item itself
func aborted(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, errs.ErrCircuitOpen) || errors.Is(err, scheduler.ErrStopped) ||
		errors.Is(err, context.Canceled)
}
