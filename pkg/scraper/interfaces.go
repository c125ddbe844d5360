package scraper

import (
	"pixivrank/internal/downloader"
	"pixivrank/pkg/ranking"
)

// Client is the pixiv API surface a run needs
type Client interface {
	ranking.Lister
	downloader.Client
}

// Scheduler paces every request of a run
type Scheduler interface {
	downloader.Submitter
}

// Reporter receives progress of a run. ItemFinished is called from the
// downloader's result goroutine.
type Reporter interface {
	BatchStarted(label string, dates []string, jobs int)
	ItemFinished(res downloader.Result)
	BatchFinished(label string, summary downloader.Summary)
}

type nopReporter struct{}

func (nopReporter) BatchStarted(string, []string, int)       {}
func (nopReporter) ItemFinished(downloader.Result)           {}
func (nopReporter) BatchFinished(string, downloader.Summary) {}
