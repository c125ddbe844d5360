package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"pixivrank/pkg/config"
	errs "pixivrank/pkg/errors"
	"pixivrank/pkg/logger"
)

var (
	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("cache store closed")
	// ErrItemNotFound is returned when no cached page holds the item
	ErrItemNotFound = errors.New("item not found in cache")
	// ErrInvalidTransition is returned for a disallowed status change
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Options tune the writer lock
type Options struct {
	LockStaleAfter time.Duration
	LockRetries    int
	LockRetryDelay time.Duration
}

// OptionsFrom converts the cache section of the configuration
func OptionsFrom(c config.CacheConfig) Options {
	return Options{
		LockStaleAfter: c.LockStaleAfter,
		LockRetries:    c.LockRetries,
		LockRetryDelay: c.LockRetryDelay,
	}
}

type flushRequest struct {
	ctx   context.Context
	pages map[string]PageCache
	gens  map[string]uint64
	done  chan error
}

// Store is the in-memory view of the year shards plus a single writer
type Store struct {
	dir  string
	log  logger.Logger
	lock *fileLock

	mu     sync.Mutex
	shards map[string]YearCache
	dirty  map[string]uint64
	gen    uint64
	closed bool

	requests chan flushRequest
	sending  sync.RWMutex
	wg       sync.WaitGroup
}

// Open creates the cache directory and starts the writer goroutine
func Open(dir string, opts Options, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.LockStaleAfter <= 0 {
		opts.LockStaleAfter = 30 * time.Second
	}
	if opts.LockRetries <= 0 {
		opts.LockRetries = 5
	}
	if opts.LockRetryDelay <= 0 {
		opts.LockRetryDelay = 200 * time.Millisecond
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	log = log.WithField("component", "cache")
	s := &Store{
		dir:      dir,
		log:      log,
		lock:     newFileLock(dir, opts, log),
		shards:   make(map[string]YearCache),
		dirty:    make(map[string]uint64),
		requests: make(chan flushRequest),
	}

	s.wg.Add(1)
	go s.writer()
	return s, nil
}

// Get returns the cached page for key
func (s *Store) Get(key string) (PageCache, bool) {
	year, err := YearOf(key)
	if err != nil {
		return PageCache{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.shardLocked(year)[key]
	return page, ok
}

// Put stores page and marks it dirty for the next flush
func (s *Store) Put(page PageCache) error {
	key := page.Key()
	year, err := YearOf(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.shardLocked(year)[key] = page
	s.markDirtyLocked(key)
	return nil
}

// UpdateStatus sets the status of item id within the pages of one listing
func (s *Store) UpdateStatus(date, mode, content string, id int64, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, idx, err := s.findLocked(date, mode, content, id)
	if err != nil {
		return err
	}
	cur := s.shards[key[:4]][key].Items[idx].Status
	if cur == status {
		return nil
	}
	if !cur.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, status)
	}
	s.setLocked(key, idx, status)
	return nil
}

// Reopen moves a failed item back to undownloaded so it can be retried
func (s *Store) Reopen(date, mode, content string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, idx, err := s.findLocked(date, mode, content, id)
	if err != nil {
		return err
	}
	switch cur := s.shards[key[:4]][key].Items[idx].Status; cur {
	case StatusUndownloaded:
		return nil
	case StatusFailed:
		s.setLocked(key, idx, StatusUndownloaded)
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, StatusUndownloaded)
	}
}

// StatusOf looks up the status of id within one listing
func (s *Store) StatusOf(date, mode, content string, id int64) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, idx, err := s.findLocked(date, mode, content, id)
	if err != nil {
		return StatusUndownloaded, false
	}
	return s.shards[key[:4]][key].Items[idx].Status, true
}

// findLocked scans only the pages under the listing's key prefix, in key order
func (s *Store) findLocked(date, mode, content string, id int64) (string, int, error) {
	year, err := YearOf(date)
	if err != nil {
		return "", 0, err
	}
	prefix := Prefix(date, mode, content)

	shard := s.shardLocked(year)
	var keys []string
	for key := range shard {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		for i, item := range shard[key].Items {
			if item.ID == id {
				return key, i, nil
			}
		}
	}
	return "", 0, fmt.Errorf("%w: %d in %s*", ErrItemNotFound, id, prefix)
}

// setLocked copies the page's items before mutating so flush snapshots stay intact
func (s *Store) setLocked(key string, idx int, status Status) {
	shard := s.shards[key[:4]]
	page := shard[key]
	items := make([]RankingItem, len(page.Items))
	copy(items, page.Items)
	items[idx].Status = status
	page.Items = items
	shard[key] = page
	s.markDirtyLocked(key)
}

// Dirty returns the number of pages awaiting a flush
func (s *Store) Dirty() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// Flush writes all dirty pages. Lock contention is returned as a
// lock_contention error and the pages stay dirty for the next flush.
func (s *Store) Flush(ctx context.Context) error {
	s.sending.RLock()
	defer s.sending.RUnlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	req := s.snapshotLocked(ctx)
	s.mu.Unlock()

	if len(req.pages) == 0 {
		return nil
	}

	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.done
}

// Close flushes outstanding pages and stops the writer
func (s *Store) Close() error {
	s.sending.Lock()
	defer s.sending.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	req := s.snapshotLocked(context.Background())
	s.mu.Unlock()

	var err error
	if len(req.pages) > 0 {
		s.requests <- req
		err = <-req.done
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	close(s.requests)
	s.wg.Wait()
	return err
}

func (s *Store) snapshotLocked(ctx context.Context) flushRequest {
	req := flushRequest{
		ctx:   ctx,
		pages: make(map[string]PageCache, len(s.dirty)),
		gens:  make(map[string]uint64, len(s.dirty)),
		done:  make(chan error, 1),
	}
	for key, gen := range s.dirty {
		year, _ := YearOf(key)
		req.pages[key] = s.shards[year][key]
		req.gens[key] = gen
	}
	return req
}

func (s *Store) markDirtyLocked(key string) {
	s.gen++
	s.dirty[key] = s.gen
}

// shardLocked returns the in-memory shard for year, loading it on first use
func (s *Store) shardLocked(year string) YearCache {
	if yc, ok := s.shards[year]; ok {
		return yc
	}

	yc, err := ReadShard(ShardPath(s.dir, year))
	if err != nil {
		s.log.WithError(err).WarnWithFields("cache shard unusable, starting empty", map[string]interface{}{
			"year": year,
		})
	}
	s.shards[year] = yc
	return yc
}

func (s *Store) writer() {
	defer s.wg.Done()
	for req := range s.requests {
		err := s.write(req)
		if err == nil {
			s.mu.Lock()
			for key, gen := range req.gens {
				if s.dirty[key] == gen {
					delete(s.dirty, key)
				}
			}
			s.mu.Unlock()
		}
		req.done <- err
	}
}

// write merges the request's pages into their shards under the file lock
func (s *Store) write(req flushRequest) error {
	byYear := make(map[string]map[string]PageCache)
	for key, page := range req.pages {
		year, _ := YearOf(key)
		if byYear[year] == nil {
			byYear[year] = make(map[string]PageCache)
		}
		byYear[year][key] = page
	}

	if err := s.lock.acquire(req.ctx); err != nil {
		if errs.IsType(err, errs.ErrorTypeLockContention) {
			s.log.WithError(err).Warn("cache flush skipped")
		}
		return err
	}
	defer func() {
		if err := s.lock.release(); err != nil {
			s.log.WithError(err).Warn("cache lock not released")
		}
	}()

	var failed []error
	for year, pages := range byYear {
		path := ShardPath(s.dir, year)

		onDisk, err := ReadShard(path)
		if err != nil {
			s.log.WithError(err).WarnWithFields("rewriting unreadable shard", map[string]interface{}{"year": year})
		}
		for key, page := range pages {
			onDisk[key] = page
		}

		if err := WriteShard(path, onDisk); err != nil {
			failed = append(failed, fmt.Errorf("shard %s: %w", year, err))
			continue
		}
		s.log.DebugWithFields("cache shard written", map[string]interface{}{
			"year":  year,
			"pages": len(pages),
			"total": len(onDisk),
		})
	}
	return errors.Join(failed...)
}
