package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"pixivrank/internal/downloader"
	"pixivrank/pkg/scheduler"
)

// Message types for the TUI

// BatchStartMsg is sent when a batch's candidates are known
type BatchStartMsg struct {
	Label string
	Dates []string
	Jobs  int
}

// ItemMsg carries one download result
type ItemMsg struct {
	Result downloader.Result
}

// BatchDoneMsg is sent when a batch finishes
type BatchDoneMsg struct {
	Label   string
	Summary downloader.Summary
}

// StatsMsg replaces the scheduler snapshot
type StatsMsg scheduler.Stats

// LogMsg is one line for the log panel
type LogMsg struct {
	Level   string
	Message string
}

// DoneMsg is sent when the run ends
type DoneMsg struct {
	Err error
}

// TickMsg is sent periodically to refresh the scheduler panel
type TickMsg time.Time

const refreshInterval = 250 * time.Millisecond

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = barWidth(msg.Width)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.bar.Update(msg)
		if bar, ok := pm.(progress.Model); ok {
			m.bar = bar
		}
		return m, cmd

	case TickMsg:
		if m.stats != nil {
			m.sched = m.stats()
		}
		if m.finished {
			return m, nil
		}
		return m, tickCmd()

	case StatsMsg:
		m.sched = scheduler.Stats(msg)
		if m.sched.Tripped {
			m.AddLogMessage("ERROR", "Rate-limit breaker tripped, dispatch halted")
		}
		return m, nil

	case BatchStartMsg:
		m.StartBatch(msg.Label, msg.Dates, msg.Jobs)
		return m, m.bar.SetPercent(0)

	case ItemMsg:
		m.FinishItem(msg.Result)
		return m, m.bar.SetPercent(m.Percent())

	case BatchDoneMsg:
		m.FinishBatch(msg.Label, msg.Summary)
		return m, m.bar.SetPercent(m.Percent())

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		if m.logs != nil {
			return m, m.logs.next()
		}
		return m, nil

	case DoneMsg:
		m.Finish(msg.Err)
		if m.stats != nil {
			m.sched = m.stats()
		}
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.onQuit != nil && !m.finished {
			m.onQuit()
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func barWidth(total int) int {
	w := (total-4)/2 - 8
	if w < 10 {
		return 10
	}
	if w > 60 {
		return 60
	}
	return w
}
