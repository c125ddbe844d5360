package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pixivrank/internal/downloader"
	"pixivrank/pkg/cache"
	"pixivrank/pkg/config"
	"pixivrank/pkg/filter"
	"pixivrank/pkg/ranking"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	SetNoColor(true)
	t.Cleanup(func() {
		Out = prev
		SetNoColor(false)
		SetQuietMode(false)
	})
	return &buf
}

type recordingSender struct {
	titles []string
}

func (r *recordingSender) Send(title, message string) error {
	r.titles = append(r.titles, title)
	return nil
}

func TestQuietModeKeepsErrors(t *testing.T) {
	buf := captureOutput(t)
	SetQuietMode(true)

	PrintInfo("Date", "20240101")
	PrintSuccess("done")
	PrintWarning("careful")
	PrintLogo()
	PrintError("Failed", errors.New("boom"))

	assert.Equal(t, "Failed: boom\n", buf.String())
	assert.True(t, IsQuietMode())
}

func TestPrintRuleSummary(t *testing.T) {
	buf := captureOutput(t)

	PrintRuleSummary(filter.Summary{})
	assert.Contains(t, buf.String(), "No tag rules")

	buf.Reset()
	PrintRuleSummary(filter.Summary{Tags: 2, NoWord: 1})
	assert.Equal(t, "Rules: 2 allow tags, 1 blocked words\n", buf.String())
}

func TestNotifierFollowsConfig(t *testing.T) {
	buf := captureOutput(t)

	cfg := config.DefaultConfig().Notifications
	cfg.OnComplete = false
	sender := &recordingSender{}
	n := NewNotifier(cfg).WithSender(sender)

	n.Complete("Done", "all good")
	n.Error("Failed", "broken")
	n.RateLimit("Rate limited", "stopping")

	assert.Equal(t, []string{"Failed", "Rate limited"}, sender.titles)
	assert.NotContains(t, buf.String(), "Done")
	assert.Contains(t, buf.String(), "Failed: broken")

	cfg.NotificationType = "none"
	buf.Reset()
	NewNotifier(cfg).Error("Failed", "broken")
	assert.Empty(t, buf.String())

	cfg.Enabled = false
	cfg.NotificationType = "terminal"
	sender = &recordingSender{}
	NewNotifier(cfg).WithSender(sender).Error("Failed", "broken")
	assert.Empty(t, sender.titles)
}

func TestConsoleReportsBatch(t *testing.T) {
	captureOutput(t)
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	job := func(id int64) downloader.Job {
		return downloader.Job{Candidate: ranking.Candidate{RankingItem: cache.RankingItem{ID: id, Rank: int(id)}}}
	}

	c.BatchStarted("202401", []string{"20240101", "20240131"}, 3)
	c.ItemFinished(downloader.Result{Job: job(1), Status: cache.StatusFinished, Kind: "single", Files: 1})
	c.ItemFinished(downloader.Result{Job: job(2), Status: cache.StatusFailed, Error: errors.New("http 404")})
	c.ItemFinished(downloader.Result{Job: job(3), Skipped: true})

	completed, failed, skipped := c.bar.Counts()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)

	c.BatchFinished("202401", downloader.Summary{Total: 3, Completed: 1, Failed: 1, Skipped: 1})

	out := buf.String()
	assert.Contains(t, out, "202401 (20240101..20240131)")
	assert.Contains(t, out, "https://www.pixiv.net/artworks/1")
	assert.Contains(t, out, "http 404")
	assert.Contains(t, out, "1 downloaded, 1 skipped, 1 failed")
	assert.Nil(t, c.bar)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "3m5s", FormatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "1h2m", FormatDuration(time.Hour+2*time.Minute))
}
