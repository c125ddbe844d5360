package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pixivrank/internal/downloader"
	"pixivrank/pkg/cache"
	"pixivrank/pkg/ranking"
	"pixivrank/pkg/scheduler"
)

func result(id int64, rank int) downloader.Result {
	return downloader.Result{
		Job: downloader.Job{Candidate: ranking.Candidate{
			RankingItem: cache.RankingItem{ID: id, Rank: rank},
			Date:        "20240101",
		}},
		Kind:  "single",
		Files: 1,
	}
}

func TestModel(t *testing.T) {
	model := NewModel(nil, nil, nil)

	model.Update(BatchStartMsg{Label: "20240101", Dates: []string{"20240101"}, Jobs: 4})
	if model.jobs != 4 || model.batches != 1 {
		t.Errorf("Expected 4 jobs in batch 1, got %d in batch %d", model.jobs, model.batches)
	}

	done := result(1, 1)
	done.Status = cache.StatusFinished
	failed := result(2, 2)
	failed.Status = cache.StatusFailed
	failed.Error = errors.New("http 404")
	skipped := result(3, 3)
	skipped.Skipped = true

	for _, r := range []downloader.Result{done, failed, skipped} {
		model.Update(ItemMsg{Result: r})
	}

	if model.batch.Completed != 1 || model.batch.Failed != 1 || model.batch.Skipped != 1 {
		t.Errorf("Unexpected batch counts: %+v", model.batch)
	}
	if got := model.Percent(); got != 0.75 {
		t.Errorf("Expected 75%% progress, got %v", got)
	}
	if len(model.recent) != 3 || model.recent[1].State != ItemFailed {
		t.Errorf("Expected failed item in recent list, got %+v", model.recent)
	}

	model.Update(BatchDoneMsg{Label: "20240101", Summary: downloader.Summary{Total: 4, Completed: 1, Failed: 1, Skipped: 1, Aborted: 1}})
	if model.run.Completed != 1 || model.run.Aborted != 1 || model.active {
		t.Errorf("Unexpected run totals: %+v", model.run)
	}

	model.Update(DoneMsg{})
	if !model.finished {
		t.Error("Expected the run to be finished")
	}
}

func TestRecentListIsBounded(t *testing.T) {
	model := NewModel(nil, nil, nil)
	model.StartBatch("20240101", []string{"20240101"}, 20)

	for i := 1; i <= 20; i++ {
		r := result(int64(i), i)
		r.Status = cache.StatusFinished
		model.FinishItem(r)
	}

	if len(model.recent) != model.maxRecent {
		t.Errorf("Expected %d recent items, got %d", model.maxRecent, len(model.recent))
	}
	if model.recent[len(model.recent)-1].ID != 20 {
		t.Errorf("Expected newest item last, got %d", model.recent[len(model.recent)-1].ID)
	}
}

func TestTickPollsScheduler(t *testing.T) {
	calls := 0
	model := NewModel(func() scheduler.Stats {
		calls++
		return scheduler.Stats{Dispatched: 7, Weight: 12, NextPauseAt: 50}
	}, nil, nil)

	_, cmd := model.Update(TickMsg(time.Now()))
	if calls != 1 || model.sched.Dispatched != 7 {
		t.Errorf("Expected one poll with 7 requests, got %d polls and %+v", calls, model.sched)
	}
	if cmd == nil {
		t.Error("Expected the tick to be rescheduled")
	}

	model.Finish(nil)
	if _, cmd := model.Update(TickMsg(time.Now())); cmd != nil {
		t.Error("Expected ticking to stop after the run")
	}
}

func TestQuitCancelsRun(t *testing.T) {
	cancelled := false
	model := NewModel(nil, nil, func() { cancelled = true })

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled {
		t.Error("Expected quit to cancel the run")
	}
	if cmd == nil {
		t.Error("Expected a quit command")
	}
}

func TestTripIsLogged(t *testing.T) {
	model := NewModel(nil, nil, nil)
	model.Update(StatsMsg(scheduler.Stats{Tripped: true, ConsecutiveLimits: 3}))

	if !model.sched.Tripped {
		t.Error("Expected tripped scheduler state")
	}
	last := model.logMessages[len(model.logMessages)-1]
	if last.Level != "ERROR" || !strings.Contains(last.Message, "breaker") {
		t.Errorf("Unexpected log entry: %+v", last)
	}
}

func TestView(t *testing.T) {
	model := NewModel(nil, nil, nil)
	if model.View() != "Initializing..." {
		t.Error("Expected placeholder before the first resize")
	}

	model.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	model.StartBatch("202401", []string{"20240101", "20240131"}, 2)
	r := result(42, 1)
	r.Status = cache.StatusFinished
	model.FinishItem(r)

	view := model.View()
	for _, want := range []string{"SCHEDULER", "202401", "artworks/42"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in       string
		n        int
		expected string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 8, "abcde..."},
		{"ランキング取得中です", 6, "ランキ..."},
	}

	for _, test := range tests {
		if got := truncate(test.in, test.n); got != test.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q", test.in, test.n, got, test.expected)
		}
	}
}

func TestLogSinkFeedsPanel(t *testing.T) {
	sink := NewLogSink(4)
	line := `{"level":"warn","error":"lock held","message":"Ranking page left dirty"}` + "\n"
	if n, err := sink.Write([]byte(line)); err != nil || n != len(line) {
		t.Fatalf("Write = %d, %v", n, err)
	}

	model := NewModel(nil, sink, nil)
	msg := sink.next()()
	_, cmd := model.Update(msg)

	if len(model.logMessages) != 1 {
		t.Fatalf("Expected one log line, got %d", len(model.logMessages))
	}
	got := model.logMessages[0]
	if got.Level != "WARN" || got.Message != "Ranking page left dirty: lock held" {
		t.Errorf("Unexpected log line: %+v", got)
	}
	if cmd == nil {
		t.Error("Expected the listener to be re-armed")
	}
}

func TestLogSinkDropsWhenFull(t *testing.T) {
	sink := NewLogSink(1)
	for i := 0; i < 3; i++ {
		if _, err := sink.Write([]byte(`{"level":"info","message":"x"}`)); err != nil {
			t.Fatal(err)
		}
	}
	if len(sink.ch) != 1 {
		t.Errorf("Expected the sink to hold one line, got %d", len(sink.ch))
	}
}
