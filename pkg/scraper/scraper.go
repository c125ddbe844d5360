package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pixivrank/internal/downloader"
	"pixivrank/pkg/cache"
	"pixivrank/pkg/checkpoint"
	"pixivrank/pkg/config"
	errs "pixivrank/pkg/errors"
	"pixivrank/pkg/ledger"
	"pixivrank/pkg/logger"
	"pixivrank/pkg/ranking"
	"pixivrank/pkg/storage"
)

// ErrCheckpointExists is returned when an unfinished run is found and neither
// Resume nor ForceRestart was requested
var ErrCheckpointExists = errors.New("checkpoint exists - use --resume to continue or --force-restart to start fresh")

// Deps are the long-lived collaborators of a Scraper. Client, Scheduler and
// Cache are required.
type Deps struct {
	Client    Client
	Scheduler Scheduler
	Cache     *cache.Store
	Reporter  Reporter
	Logger    logger.Logger
	// CheckpointDir overrides the per-user data directory
	CheckpointDir string
}

// Summary is the outcome of a Run
type Summary struct {
	RunID string
	downloader.Summary
	Batches      int
	Dates        int
	ResumedDates int
	Candidates   int
	Tripped      bool
	Duration     time.Duration
}

func (s *Summary) add(o Summary) {
	s.Total += o.Total
	s.Completed += o.Completed
	s.Failed += o.Failed
	s.Skipped += o.Skipped
	s.Aborted += o.Aborted
	s.Batches += o.Batches
	s.Dates += o.Dates
	s.ResumedDates += o.ResumedDates
	s.Candidates += o.Candidates
}

// Scraper runs plans
type Scraper struct {
	cfg      *config.Config
	client   Client
	sched    Scheduler
	store    *cache.Store
	reporter Reporter
	cpDir    string
	logger   logger.Logger
}

// New creates a Scraper
func New(cfg *config.Config, deps Deps) (*Scraper, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Client == nil || deps.Scheduler == nil || deps.Cache == nil {
		return nil, errors.New("client, scheduler and cache are required")
	}
	log := deps.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	return &Scraper{
		cfg:      cfg,
		client:   deps.Client,
		sched:    deps.Scheduler,
		store:    deps.Cache,
		reporter: deps.Reporter,
		cpDir:    deps.CheckpointDir,
		logger:   log.WithField("component", "scraper"),
	}, nil
}

// Run processes every batch of plan in order. It stops early when the
// circuit breaker trips or ctx ends; the summary covers what was done.
func (s *Scraper) Run(ctx context.Context, plan Plan) (Summary, error) {
	rc := newRunContext(s.reporter)
	sum := Summary{RunID: rc.ID}
	log := s.logger.WithField("run_id", rc.ID)

	log.InfoWithFields("Starting run", map[string]interface{}{
		"mode":    plan.Mode,
		"content": plan.Content,
		"period":  plan.Period,
		"batches": len(plan.Batches),
	})

	cpm, cp, err := s.openCheckpoint(rc, plan, log)
	if err != nil {
		return sum, err
	}

	for _, b := range plan.Batches {
		bs, err := s.runBatch(ctx, rc, plan, b, cpm, cp, log)
		sum.add(bs)
		if err != nil {
			sum.Tripped = errors.Is(err, errs.ErrCircuitOpen)
			sum.Duration = time.Since(rc.StartedAt)
			log.WithError(err).WarnWithFields("Run stopped early", map[string]interface{}{
				"batch":     b.Label,
				"completed": sum.Completed,
				"failed":    sum.Failed,
			})
			return sum, err
		}
	}

	if cpm != nil {
		if err := cpm.Delete(); err != nil {
			log.WithError(err).Warn("Failed to delete checkpoint")
		} else {
			log.Debug("Checkpoint deleted after successful completion")
		}
	}

	sum.Duration = time.Since(rc.StartedAt)
	log.InfoWithFields("Run completed", map[string]interface{}{
		"total":     sum.Total,
		"completed": sum.Completed,
		"failed":    sum.Failed,
		"skipped":   sum.Skipped,
		"duration":  sum.Duration.String(),
	})
	return sum, nil
}

func (s *Scraper) openCheckpoint(rc *RunContext, plan Plan, log logger.Logger) (*checkpoint.Manager, *checkpoint.Checkpoint, error) {
	if !s.cfg.Output.Checkpoint {
		return nil, nil, nil
	}

	sig := checkpoint.Signature(plan.Mode, plan.Content, plan.Period, plan.ruleKey()...)
	var (
		cpm *checkpoint.Manager
		err error
	)
	if s.cpDir != "" {
		cpm, err = checkpoint.NewManagerAt(s.cpDir, sig)
	} else {
		cpm, err = checkpoint.NewManager(sig)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create checkpoint manager: %w", err)
	}

	var cp *checkpoint.Checkpoint
	switch {
	case plan.ForceRestart && cpm.Exists():
		if err := cpm.Delete(); err != nil {
			log.WithError(err).Warn("Failed to delete existing checkpoint")
		}
		log.Info("Ignoring existing checkpoint")
	case plan.Resume && cpm.Exists():
		cp, err = cpm.Load()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
	case cpm.Exists():
		return nil, nil, ErrCheckpointExists
	}

	if cp == nil {
		cp, err = cpm.Create(rc.ID, sig, plan.Mode, plan.Content, plan.Period)
		if err != nil {
			log.WithError(err).Warn("Failed to create checkpoint, continuing without one")
			return nil, nil, nil
		}
	}
	return cpm, cp, nil
}

func (s *Scraper) runBatch(ctx context.Context, rc *RunContext, plan Plan, b Batch, cpm *checkpoint.Manager, cp *checkpoint.Checkpoint, log logger.Logger) (Summary, error) {
	bs := Summary{Batches: 1}
	log = log.WithField("batch", b.Label)

	pending := cp.Pending(b.Dates)
	bs.ResumedDates = len(b.Dates) - len(pending)
	if len(pending) == 0 {
		log.Info("Batch already completed, skipping")
		return bs, nil
	}
	bs.Dates = len(pending)

	layout := storage.NewLayout(b.Dir)
	files, err := storage.NewManager(b.Dir)
	if err != nil {
		return bs, fmt.Errorf("failed to create storage manager: %w", err)
	}
	index, err := ledger.Open(layout.Dir(false), layout.Dir(true))
	if err != nil {
		return bs, fmt.Errorf("failed to read ledger: %w", err)
	}

	fetcher := ranking.NewFetcher(s.client, s.sched, s.store, ranking.Options{
		Mode:    plan.Mode,
		Content: plan.Content,
		Pages:   plan.Pages,
		Rules:   plan.Rules,
	}, s.logger)

	candidates, err := fetcher.FetchBatch(ctx, pending)
	bs.Candidates = len(candidates)
	if err != nil {
		s.flush(ctx, log)
		return bs, err
	}

	jobs := make([]downloader.Job, 0, len(candidates))
	for _, c := range candidates {
		jobs = append(jobs, downloader.Job{Candidate: c, Layout: layout})
	}
	log.InfoWithFields("Listing resolved", map[string]interface{}{
		"dates":      len(pending),
		"candidates": len(jobs),
		"known":      index.Len(),
	})
	rc.batchStarted(b, pending, len(jobs))

	dl := downloader.NewManager(s.client, s.sched, s.store, files, ledger.NewWriter(index, s.logger), s.downloadOptions(plan), s.logger)
	dl.OnResult(rc.itemFinished)
	bs.Summary = dl.Run(ctx, jobs)

	s.flush(ctx, log)
	rc.batchFinished(b, bs.Summary)
	logger.LogBatchProgress(log, b.Label, bs.Completed+bs.Failed+bs.Skipped, bs.Total)
	saved, written := files.Saved()
	log.InfoWithFields("Batch written", map[string]interface{}{
		"dir":   files.Dir(),
		"files": saved,
		"bytes": written,
	})

	switch {
	case s.sched.Tripped():
		return bs, errs.ErrCircuitOpen
	case ctx.Err() != nil:
		return bs, ctx.Err()
	}

	if cp != nil {
		for i, d := range pending {
			completed, failed := 0, 0
			if i == len(pending)-1 {
				completed, failed = bs.Completed, bs.Failed
			}
			if err := cpm.MarkDate(cp, d, completed, failed); err != nil {
				log.WithError(err).Warn("Failed to update checkpoint")
				break
			}
		}
	}
	return bs, nil
}

// flush writes the batch's listing pages and statuses even when ctx has
// ended. A failed flush leaves the pages dirty for the next one.
func (s *Scraper) flush(ctx context.Context, log logger.Logger) {
	if err := s.store.Flush(context.WithoutCancel(ctx)); err != nil {
		log.WithError(err).WarnWithFields("Cache flush failed", map[string]interface{}{
			"dirty_pages": s.store.Dirty(),
		})
	}
}

func (s *Scraper) downloadOptions(plan Plan) downloader.Options {
	d := s.cfg.Download
	return downloader.Options{
		Mode:          plan.Mode,
		Content:       plan.Content,
		Workers:       d.Workers,
		SingleImage:   d.SingleImage,
		RetryFailed:   d.RetryFailed,
		RetryAttempts: d.RetryAttempts,
		RetryDelay:    d.RetryDelay,
		Ugoira:        d.Ugoira,
	}
}
