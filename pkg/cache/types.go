// Package cache persists ranking listings in one JSON shard per calendar year.
//
// Pages are keyed by "<date>_<mode>_<content>_<page>". Writes are batched in
// memory and flushed by a single writer goroutine which, for each affected
// year, takes the cache.lock file, re-reads the shard, merges the dirty pages
// over it and atomically replaces the file.
package cache

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"pixivrank/pkg/filter"
)

// Status tracks the download state of a ranking item
type Status int

const (
	StatusUndownloaded Status = iota
	StatusFinished
	StatusFailed
)

// wire names kept compatible with existing shards
var statusNames = map[Status]string{
	StatusUndownloaded: "undownload",
	StatusFinished:     "finish",
	StatusFailed:       "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports whether s is finished or failed
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// CanTransition reports whether from → to is allowed. Only undownloaded items
// may move, and only to a terminal state.
func (s Status) CanTransition(to Status) bool {
	return s == StatusUndownloaded && to.Terminal()
}

func (s Status) MarshalJSON() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return json.Marshal(name)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch strings.ToLower(name) {
	case "", "undownload", "undownloaded":
		*s = StatusUndownloaded
	case "finish", "finished":
		*s = StatusFinished
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown status %q", name)
	}
	return nil
}

// RankingItem is one ranked work as stored in a page
type RankingItem struct {
	ID     int64              `json:"illust_id"`
	Tags   []string           `json:"tags"`
	Width  int                `json:"width"`
	Height int                `json:"height"`
	Type   filter.ContentType `json:"illust_type"`
	Rank   int                `json:"rank"`
	Page   int                `json:"page"`
	Status Status             `json:"status"`
}

// FilterItem projects the item onto the filter's view
func (it RankingItem) FilterItem() filter.Item {
	return filter.Item{
		ID:     it.ID,
		Tags:   it.Tags,
		Width:  it.Width,
		Height: it.Height,
		Type:   it.Type,
	}
}

// PageCache is one listing page and its raw metadata
type PageCache struct {
	Date    string          `json:"date"`
	Mode    string          `json:"mode"`
	Content string          `json:"content"`
	Page    int             `json:"page"`
	Items   []RankingItem   `json:"items"`
	Meta    json.RawMessage `json:"meta,omitempty"`
}

// Key returns the page's cache key
func (p PageCache) Key() string {
	return Key(p.Date, p.Mode, p.Content, p.Page)
}

// YearCache maps page keys to pages for one calendar year
type YearCache map[string]PageCache

// Key builds a page key such as "20240101_daily_illust_1"
func Key(date, mode, content string, page int) string {
	return Prefix(date, mode, content) + strconv.Itoa(page)
}

// Prefix is the key prefix shared by every page of one listing
func Prefix(date, mode, content string) string {
	return date + "_" + mode + "_" + content + "_"
}

// YearOf returns the shard year for a key, validating the leading 8-digit date
func YearOf(key string) (string, error) {
	if len(key) < 8 {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	for _, r := range key[:8] {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid cache key %q", key)
		}
	}
	return key[:4], nil
}
