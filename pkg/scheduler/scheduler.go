package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pixivrank/pkg/config"
	errs "pixivrank/pkg/errors"
	"pixivrank/pkg/logger"
)

// Task weights
const (
	WeightAPI      = 1
	WeightDownload = 2
)

// ErrStopped is returned for tasks still queued when the scheduler stops
var ErrStopped = errors.New("scheduler stopped")

// Task is one unit of outbound work
type Task func(ctx context.Context) error

// Stats is a snapshot of the scheduler's counters
type Stats struct {
	Dispatched        int
	Weight            int
	NextPauseAt       int
	PauseDuration     time.Duration
	Pauses            int
	Paused            bool
	PausedUntil       time.Time
	Queued            int
	ConsecutiveLimits int
	Tripped           bool
}

type job struct {
	ctx    context.Context
	weight int
	task   Task
	done   chan error
}

// Scheduler serializes and paces tasks
type Scheduler struct {
	cfg  config.SchedulerConfig
	log  logger.Logger
	jobs chan *job
	quit chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	mu          sync.Mutex
	dispatched  int
	weight      int
	nextPauseAt int
	pauseDur    time.Duration
	gap         int
	pauses      int
	pausedUntil time.Time
	lastDone    time.Time
	limits      int
	tripped     bool

	onPause func(Stats)
	onTrip  func(Stats)
	pending []func()
}

// New creates a scheduler. Call Start before submitting work.
func New(cfg config.SchedulerConfig, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = 50
	}
	if cfg.EscalationStep <= 0 {
		cfg.EscalationStep = 1000
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	return &Scheduler{
		cfg:         cfg,
		log:         log.WithField("component", "scheduler"),
		jobs:        make(chan *job, cfg.QueueSize),
		quit:        make(chan struct{}),
		nextPauseAt: cfg.PauseThreshold,
		pauseDur:    cfg.PauseDuration,
		gap:         cfg.EscalationStep,
	}
}

// OnPause registers a callback invoked from the dispatcher whenever a pause is
// scheduled. Register before Start.
func (s *Scheduler) OnPause(fn func(Stats)) { s.onPause = fn }

// OnTrip registers a callback invoked once when the breaker trips
func (s *Scheduler) OnTrip(fn func(Stats)) { s.onTrip = fn }

// Start launches the dispatcher
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
		logger.LogComponentStart(s.log, "scheduler", map[string]interface{}{
			"interval":        s.cfg.Interval,
			"pause_threshold": s.cfg.PauseThreshold,
			"pause_duration":  s.cfg.PauseDuration,
		})
	})
}

// Stop halts dispatch. A task already running is allowed to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
		logger.LogComponentStop(s.log, "scheduler", "stopped")
	})
}

// Do enqueues task and blocks until it has run. If ctx ends before the task is
// dispatched the task is skipped and ctx.Err() is returned.
func (s *Scheduler) Do(ctx context.Context, weight int, task Task) error {
	if weight < 1 {
		weight = 1
	}
	if s.Tripped() {
		return errs.ErrCircuitOpen
	}

	j := &job{ctx: ctx, weight: weight, task: task, done: make(chan error, 1)}

	select {
	case s.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrStopped
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		// the dispatcher may still be finishing this job
		select {
		case err := <-j.done:
			return err
		default:
			return ErrStopped
		}
	}
}

// Stats returns a snapshot of the counters
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Scheduler) statsLocked() Stats {
	return Stats{
		Dispatched:        s.dispatched,
		Weight:            s.weight,
		NextPauseAt:       s.nextPauseAt,
		PauseDuration:     s.pauseDur,
		Pauses:            s.pauses,
		Paused:            time.Now().Before(s.pausedUntil),
		PausedUntil:       s.pausedUntil,
		Queued:            len(s.jobs),
		ConsecutiveLimits: s.limits,
		Tripped:           s.tripped,
	}
}

// Tripped reports whether the rate-limit breaker has halted dispatch
func (s *Scheduler) Tripped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripped
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case j := <-s.jobs:
			s.dispatch(j)
		}
	}
}

func (s *Scheduler) dispatch(j *job) {
	if err := j.ctx.Err(); err != nil {
		j.done <- err
		return
	}
	if s.Tripped() {
		j.done <- errs.ErrCircuitOpen
		return
	}

	s.mu.Lock()
	if s.weight+j.weight > s.nextPauseAt {
		s.pauseLocked()
	}
	readyAt := s.lastDone.Add(s.cfg.Interval)
	if s.pausedUntil.After(readyAt) {
		readyAt = s.pausedUntil
	}
	s.mu.Unlock()
	s.notify()

	if err := s.waitUntil(j.ctx, readyAt); err != nil {
		j.done <- err
		return
	}

	s.mu.Lock()
	s.dispatched++
	s.weight += j.weight
	s.mu.Unlock()

	err := s.execute(j)

	s.mu.Lock()
	s.lastDone = time.Now()
	s.recordOutcomeLocked(err)
	if s.weight >= s.nextPauseAt {
		s.pauseLocked()
	}
	s.mu.Unlock()
	s.notify()

	j.done <- err
}

// notify runs callbacks queued while the lock was held
func (s *Scheduler) notify() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

func (s *Scheduler) execute(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			s.log.ErrorWithFields("task panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	return j.task(j.ctx)
}

func (s *Scheduler) waitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrStopped
	}
}

// pauseLocked moves the pause point and schedules a pause starting now
func (s *Scheduler) pauseLocked() {
	s.nextPauseAt = s.weight + s.cfg.PauseThreshold
	if s.nextPauseAt > s.gap {
		s.pauseDur += s.cfg.PauseIncrement
		s.gap += s.cfg.EscalationStep
	}
	s.pauses++
	s.pausedUntil = time.Now().Add(s.pauseDur)

	logger.LogSchedulerPause(s.log, s.weight, s.pauseDur, s.nextPauseAt)
	if s.onPause != nil {
		st := s.statsLocked()
		s.pending = append(s.pending, func() { s.onPause(st) })
	}
}

func (s *Scheduler) recordOutcomeLocked(err error) {
	if !errs.IsType(err, errs.ErrorTypeRateLimit) {
		s.limits = 0
		return
	}

	s.limits++
	if s.limits < s.cfg.BreakerThreshold || s.tripped {
		return
	}

	s.tripped = true
	s.log.ErrorWithFields("rate-limit breaker tripped, halting dispatch", map[string]interface{}{
		"consecutive": s.limits,
		"dispatched":  s.dispatched,
	})
	if s.onTrip != nil {
		st := s.statsLocked()
		s.pending = append(s.pending, func() { s.onTrip(st) })
	}
}
