package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// BatchProgress is the line-mode progress bar of one batch
type BatchProgress struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
	out io.Writer

	total     int
	completed int
	failed    int
	skipped   int
	startTime time.Time
}

// NewBatchProgress starts a bar over total items. No bar is drawn in quiet
// mode or for an empty batch; the counters still work.
func NewBatchProgress(out io.Writer, label string, total int) *BatchProgress {
	if out == nil {
		out = Out
	}
	p := &BatchProgress{out: out, total: total, startTime: time.Now()}

	if total > 0 && !IsQuietMode() {
		desc := label
		theme := progressbar.Theme{Saucer: "━", SaucerHead: "╸", SaucerPadding: "─", BarStart: "[", BarEnd: "]"}
		if !noColor.Load() {
			desc = "[cyan]" + label + "[reset]"
			theme.Saucer = "[green]━[reset]"
			theme.SaucerHead = "[green]╸[reset]"
		}
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(out),
			progressbar.OptionEnableColorCodes(!noColor.Load()),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("works"),
			progressbar.OptionSetDescription(desc),
			progressbar.OptionSetTheme(theme),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(out)
			}),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}
	return p
}

// Completed counts a finished item
func (p *BatchProgress) Completed() { p.step(&p.completed) }

// Failed counts a failed item
func (p *BatchProgress) Failed() { p.step(&p.failed) }

// Skipped counts an item that was already processed
func (p *BatchProgress) Skipped() { p.step(&p.skipped) }

func (p *BatchProgress) step(counter *int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	*counter++
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// Message prints a line above the bar
func (p *BatchProgress) Message(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		_ = p.bar.Clear()
	}
	fmt.Fprintf(p.out, format, args...)
	if p.bar != nil {
		_ = p.bar.RenderBlank()
	}
}

// Finish completes the bar; aborted items leave it short of its total
func (p *BatchProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		_ = p.bar.Exit()
		fmt.Fprintln(p.out)
		p.bar = nil
	}
}

// Counts returns completed, failed and skipped so far
func (p *BatchProgress) Counts() (completed, failed, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed, p.failed, p.skipped
}

// Rate is finished items per minute
func (p *BatchProgress) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	minutes := time.Since(p.startTime).Minutes()
	if minutes == 0 {
		return 0
	}
	return float64(p.completed) / minutes
}

// FormatDuration renders d as 42s, 3m5s or 1h2m
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
