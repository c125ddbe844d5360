package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"pixivrank/internal/downloader"
	"pixivrank/pkg/pixiv"
)

// Console reports run progress as colored lines plus a progress bar per batch
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	bar     *BatchProgress
	started time.Time
}

// NewConsole creates a console reporter. Verbose prints a line per item.
func NewConsole(out io.Writer, verbose bool) *Console {
	if out == nil {
		out = Out
	}
	return &Console{out: out, verbose: verbose}
}

func (c *Console) BatchStarted(label string, dates []string, jobs int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started = time.Now()
	if !IsQuietMode() {
		span := label
		if len(dates) > 1 {
			span = fmt.Sprintf("%s (%s..%s)", label, dates[0], dates[len(dates)-1])
		}
		fmt.Fprintf(c.out, "\n%s %s • %d candidates\n", Magenta("[RANKING]"), span, jobs)
	}
	c.bar = NewBatchProgress(c.out, label, jobs)
}

func (c *Console) ItemFinished(res downloader.Result) {
	c.mu.Lock()
	bar := c.bar
	c.mu.Unlock()
	if bar == nil {
		return
	}

	switch {
	case res.Skipped:
		bar.Skipped()
	case res.Aborted:
		// left for the next run
	case res.Error != nil:
		bar.Failed()
		if !IsQuietMode() {
			bar.Message("%s %d %s\n", Red("✗"), res.Job.ID, Dim(res.Error.Error()))
		}
	default:
		bar.Completed()
		if c.verbose && !IsQuietMode() {
			where := ""
			if res.Job.Blocked {
				where = Yellow(" [" + res.Job.Reason + "]")
			}
			bar.Message("%s #%d %s %s%s\n", Green("✓"), res.Job.Rank, pixiv.ArtworkURL(res.Job.ID), Dim(res.Kind), where)
		}
	}
}

func (c *Console) BatchFinished(label string, s downloader.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}
	if IsQuietMode() {
		return
	}

	fmt.Fprintf(c.out, "%s %s: %d downloaded, %d skipped",
		Green("✓"), label, s.Completed, s.Skipped)
	if s.Failed > 0 {
		fmt.Fprintf(c.out, ", %s", Red(fmt.Sprintf("%d failed", s.Failed)))
	}
	if s.Aborted > 0 {
		fmt.Fprintf(c.out, ", %s", Yellow(fmt.Sprintf("%d not attempted", s.Aborted)))
	}
	fmt.Fprintf(c.out, " %s\n", Dim("in "+FormatDuration(time.Since(c.started))))
}
