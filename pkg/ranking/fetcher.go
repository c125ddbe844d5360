// Package ranking walks ranking listings page by page and reduces them to a
// deduplicated list of download candidates.
package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pixivrank/pkg/cache"
	errs "pixivrank/pkg/errors"
	"pixivrank/pkg/filter"
	"pixivrank/pkg/logger"
	"pixivrank/pkg/pixiv"
	"pixivrank/pkg/scheduler"
)

// Lister fetches one listing page
type Lister interface {
	Ranking(ctx context.Context, date, mode, content string, page int) (*pixiv.RankingResponse, error)
}

// Submitter runs a task through the request scheduler
type Submitter interface {
	Do(ctx context.Context, weight int, task scheduler.Task) error
}

// Candidate is an item accepted by the filter, with the listing it came from
type Candidate struct {
	cache.RankingItem
	Date    string
	Blocked bool
	Reason  string
}

// Options select the listing and the rules applied to it
type Options struct {
	Mode    string
	Content string
	// Pages limits how many pages are read per date; 0 reads until the
	// listing has no next page
	Pages int
	Rules filter.RuleSet
}

// Fetcher reads listings through the cache and the scheduler
type Fetcher struct {
	lister Lister
	sched  Submitter
	store  *cache.Store
	opts   Options
	log    logger.Logger
}

// NewFetcher creates a fetcher
func NewFetcher(lister Lister, sched Submitter, store *cache.Store, opts Options, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Pages < 0 {
		opts.Pages = 0
	}
	return &Fetcher{
		lister: lister,
		sched:  sched,
		store:  store,
		opts:   opts,
		log:    log.WithField("component", "ranking"),
	}
}

// FetchPage returns the candidates of one page and whether another page
// follows. A cached page is filtered without touching the network.
func (f *Fetcher) FetchPage(ctx context.Context, date string, page int) ([]Candidate, bool, error) {
	key := cache.Key(date, f.opts.Mode, f.opts.Content, page)

	cached, ok := f.store.Get(key)
	if ok {
		f.log.DebugWithFields("Ranking page served from cache", map[string]interface{}{
			"key":   key,
			"items": len(cached.Items),
		})
		return f.candidates(date, cached.Items), cachedHasNext(cached), nil
	}

	var resp *pixiv.RankingResponse
	err := f.sched.Do(ctx, scheduler.WeightAPI, func(ctx context.Context) error {
		var err error
		resp, err = f.lister.Ranking(ctx, date, f.opts.Mode, f.opts.Content, page)
		return err
	})
	if err != nil {
		// pixiv answers 404 for a page past the end of the listing
		if errs.IsType(err, errs.ErrorTypeNotFound) && page > 1 {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("ranking %s page %d: %w", date, page, err)
	}

	items := f.normalize(date, page, resp.Contents)
	if err := f.store.Put(cache.PageCache{
		Date:    date,
		Mode:    f.opts.Mode,
		Content: f.opts.Content,
		Page:    page,
		Items:   items,
		Meta:    resp.RawMeta(),
	}); err != nil {
		f.log.WithError(err).Warn("Failed to cache ranking page")
	}

	f.log.InfoWithFields("Fetched ranking page", map[string]interface{}{
		"date":  date,
		"page":  page,
		"items": len(items),
		"next":  resp.HasNext(),
	})
	return f.candidates(date, items), resp.HasNext(), nil
}

// FetchBatch walks every date in order, each page in order, and returns the
// deduplicated candidates capped at the rule set's Max. A failing page ends
// that date's pagination; only cancellation and an open circuit abort the batch.
func (f *Fetcher) FetchBatch(ctx context.Context, dates []string) ([]Candidate, error) {
	seen := make(map[int64]bool)
	var out []Candidate

	for _, date := range dates {
		for page := 1; ; page++ {
			if f.full(out) {
				return out, nil
			}

			cands, hasNext, err := f.FetchPage(ctx, date, page)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				if errors.Is(err, errs.ErrCircuitOpen) || errors.Is(err, scheduler.ErrStopped) {
					return out, err
				}
				f.log.WithError(err).WarnWithFields("Skipping rest of listing", map[string]interface{}{
					"date": date,
					"page": page,
				})
				break
			}

			for _, c := range cands {
				if seen[c.ID] {
					continue
				}
				seen[c.ID] = true
				out = append(out, c)
				if f.full(out) {
					return out, nil
				}
			}

			if !hasNext || (f.opts.Pages > 0 && page >= f.opts.Pages) {
				break
			}
		}
	}

	return out, nil
}

func (f *Fetcher) full(out []Candidate) bool {
	return f.opts.Rules.Max > 0 && len(out) >= f.opts.Rules.Max
}

// normalize converts listing entries, keeping the status of items already known
func (f *Fetcher) normalize(date string, page int, entries []pixiv.RankingEntry) []cache.RankingItem {
	items := make([]cache.RankingItem, 0, len(entries))
	for _, e := range entries {
		status, ok := f.store.StatusOf(date, f.opts.Mode, f.opts.Content, e.IllustID)
		if !ok {
			status = cache.StatusUndownloaded
		}
		items = append(items, cache.RankingItem{
			ID:     e.IllustID,
			Tags:   e.Tags,
			Width:  e.Width,
			Height: e.Height,
			Type:   filter.ContentType(e.IllustType),
			Rank:   e.Rank,
			Page:   page,
			Status: status,
		})
	}
	return items
}

func (f *Fetcher) candidates(date string, items []cache.RankingItem) []Candidate {
	var out []Candidate
	for _, it := range items {
		d := filter.Evaluate(it.FilterItem(), f.opts.Rules)
		if !d.Candidate {
			continue
		}
		out = append(out, Candidate{RankingItem: it, Date: date, Blocked: d.Blocked, Reason: d.Reason})
	}
	return out
}

// cachedHasNext reads the next-page marker from stored listing metadata.
// Pages cached without metadata are assumed to continue while non-empty.
func cachedHasNext(p cache.PageCache) bool {
	if len(p.Meta) == 0 {
		return len(p.Items) > 0
	}
	var meta pixiv.RankingMeta
	if err := json.Unmarshal(p.Meta, &meta); err != nil {
		return len(p.Items) > 0
	}
	return meta.Next > 0
}
