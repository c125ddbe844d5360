package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pixivrank/internal/downloader"
	"pixivrank/pkg/scheduler"
)

// ItemState is the outcome shown for one work
type ItemState int

const (
	ItemCompleted ItemState = iota
	ItemFailed
	ItemSkipped
	ItemAborted
)

// Item is one finished work in the recent list
type Item struct {
	ID       int64
	Rank     int
	Date     string
	Kind     string
	Files    int
	Blocked  bool
	State    ItemState
	Err      error
	Duration time.Duration
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// StatsSource returns the current scheduler counters
type StatsSource func() scheduler.Stats

// Model is the bubbletea model of the run monitor
type Model struct {
	spinner spinner.Model
	bar     progress.Model
	stats   StatsSource
	logs    *LogSink
	onQuit  func()

	// current batch
	label  string
	dates  []string
	jobs   int
	batch  downloader.Summary
	active bool

	// whole run
	run       downloader.Summary
	batches   int
	startTime time.Time
	finished  bool
	finalErr  error

	sched scheduler.Stats

	recent    []Item
	maxRecent int

	logMessages    []LogMessage
	maxLogMessages int

	width    int
	height   int
	showHelp bool
}

// NewModel creates the monitor. stats and logs may be nil; onQuit runs when
// the user leaves with q or ctrl+c.
func NewModel(stats StatsSource, logs *LogSink, onQuit func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(pixivBlue)

	bar := progress.New(progress.WithGradient(string(pixivBlue), string(leafGreen)))
	bar.Width = 40

	return Model{
		spinner:        s,
		bar:            bar,
		stats:          stats,
		logs:           logs,
		onQuit:         onQuit,
		startTime:      time.Now(),
		maxRecent:      8,
		maxLogMessages: 50,
	}
}

// Init starts the spinner, the refresh tick and the log listener
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, tickCmd()}
	if m.logs != nil {
		cmds = append(cmds, m.logs.next())
	}
	return tea.Batch(cmds...)
}

// StartBatch resets the batch counters
func (m *Model) StartBatch(label string, dates []string, jobs int) {
	m.label = label
	m.dates = dates
	m.jobs = jobs
	m.batch = downloader.Summary{Total: jobs}
	m.batches++
	m.active = true
	m.AddLogMessage("INFO", fmt.Sprintf("Batch %s: %d candidates", label, jobs))
}

// FinishItem records one result
func (m *Model) FinishItem(res downloader.Result) {
	item := Item{
		ID:       res.Job.ID,
		Rank:     res.Job.Rank,
		Date:     res.Job.Date,
		Kind:     res.Kind,
		Files:    res.Files,
		Blocked:  res.Job.Blocked,
		Err:      res.Error,
		Duration: res.Duration,
	}

	switch {
	case res.Skipped:
		item.State = ItemSkipped
		m.batch.Skipped++
	case res.Aborted:
		item.State = ItemAborted
		m.batch.Aborted++
	case res.Error != nil:
		item.State = ItemFailed
		m.batch.Failed++
		m.AddLogMessage("ERROR", fmt.Sprintf("%d: %v", res.Job.ID, res.Error))
	default:
		item.State = ItemCompleted
		m.batch.Completed++
	}

	m.recent = append(m.recent, item)
	if len(m.recent) > m.maxRecent {
		m.recent = m.recent[len(m.recent)-m.maxRecent:]
	}
}

// FinishBatch folds the batch summary into the run totals
func (m *Model) FinishBatch(label string, s downloader.Summary) {
	m.batch = s
	m.active = false
	m.run.Total += s.Total
	m.run.Completed += s.Completed
	m.run.Failed += s.Failed
	m.run.Skipped += s.Skipped
	m.run.Aborted += s.Aborted

	level := "SUCCESS"
	if s.Failed > 0 || s.Aborted > 0 {
		level = "WARN"
	}
	m.AddLogMessage(level, fmt.Sprintf("Batch %s: %d downloaded, %d failed, %d skipped", label, s.Completed, s.Failed, s.Skipped))
}

// Finish marks the run as over
func (m *Model) Finish(err error) {
	m.finished = true
	m.finalErr = err
	if err != nil {
		m.AddLogMessage("ERROR", "Run stopped: "+err.Error())
	} else {
		m.AddLogMessage("SUCCESS", "Run completed")
	}
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	color := dimWhite
	switch level {
	case "ERROR":
		color = alertRed
	case "WARN", "WARNING":
		color = amber
	case "SUCCESS":
		color = leafGreen
	case "INFO":
		color = pixivBlue
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Percent is the share of the current batch that has an outcome
func (m Model) Percent() float64 {
	if m.jobs == 0 {
		return 0
	}
	done := m.batch.Completed + m.batch.Failed + m.batch.Skipped + m.batch.Aborted
	p := float64(done) / float64(m.jobs)
	if p > 1 {
		p = 1
	}
	return p
}

// Rate is downloaded works per minute over the whole run
func (m Model) Rate() float64 {
	minutes := time.Since(m.startTime).Minutes()
	if minutes == 0 {
		return 0
	}
	done := m.run.Completed
	if m.active {
		done += m.batch.Completed
	}
	return float64(done) / minutes
}
