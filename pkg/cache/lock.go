package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	errs "pixivrank/pkg/errors"
	"pixivrank/pkg/logger"
	"pixivrank/pkg/retry"
)

const lockName = "cache.lock"

var errLockHeld = errors.New("cache lock held")

// fileLock is the cooperative writer lock shared with other processes
type fileLock struct {
	path       string
	staleAfter time.Duration
	retries    int
	delay      time.Duration
	log        logger.Logger
	now        func() time.Time
}

func newFileLock(dir string, opts Options, log logger.Logger) *fileLock {
	return &fileLock{
		path:       filepath.Join(dir, lockName),
		staleAfter: opts.LockStaleAfter,
		retries:    opts.LockRetries,
		delay:      opts.LockRetryDelay,
		log:        log,
		now:        time.Now,
	}
}

// acquire takes the lock, retrying with linear backoff. Exhausting the
// retries yields a lock_contention error.
func (l *fileLock) acquire(ctx context.Context) error {
	err := retry.Do(ctx, retry.Policy{
		Attempts: l.retries,
		Backoff:  retry.Linear{Step: l.delay},
		RetryIf:  func(err error) bool { return errors.Is(err, errLockHeld) },
		Logger:   l.log,
	}, func(context.Context) error { return l.tryAcquire() })
	if errors.Is(err, errLockHeld) {
		return errs.Wrap(errs.ErrorTypeLockContention, 0, err, fmt.Sprintf("gave up on %s after %d attempts", l.path, l.retries))
	}
	return err
}

func (l *fileLock) tryAcquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err == nil {
		_, werr := f.WriteString(strconv.FormatInt(l.now().UnixMilli(), 10))
		cerr := f.Close()
		if werr != nil || cerr != nil {
			os.Remove(l.path)
			return fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
		}
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if l.stale() {
		l.log.WarnWithFields("removing stale cache lock", map[string]interface{}{"path": l.path})
		if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("failed to remove stale lock: %w", rmErr)
		}
		return l.tryAcquire()
	}
	return errLockHeld
}

// stale reports whether the lock's timestamp is older than the staleness window.
// An unreadable lock falls back to the file's modification time.
func (l *fileLock) stale() bool {
	var taken time.Time

	data, err := os.ReadFile(l.path)
	if err != nil {
		return os.IsNotExist(err)
	}
	if ms, perr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); perr == nil {
		taken = time.UnixMilli(ms)
	} else if info, serr := os.Stat(l.path); serr == nil {
		taken = info.ModTime()
	} else {
		return false
	}

	return l.now().Sub(taken) > l.staleAfter
}

func (l *fileLock) release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release cache lock: %w", err)
	}
	return nil
}
