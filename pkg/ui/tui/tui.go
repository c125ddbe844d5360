// Package tui is the full-screen run monitor. TUI implements the scraper's
// Reporter, so it can stand in for the line console.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"pixivrank/internal/downloader"
	"pixivrank/pkg/scheduler"
)

// TUI represents the terminal user interface
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates the monitor. stats is polled for the scheduler panel, logs
// feeds the log panel and onQuit is called when the user quits before the
// run is over.
func NewTUI(stats StatsSource, logs *LogSink, onQuit func(), opts ...tea.ProgramOption) *TUI {
	model := NewModel(stats, logs, onQuit)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)

	return &TUI{
		program: tea.NewProgram(&model, opts...),
		model:   &model,
	}
}

// Start runs the program until it quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Send delivers msg to the running program
func (t *TUI) Send(msg tea.Msg) {
	t.program.Send(msg)
}

func (t *TUI) BatchStarted(label string, dates []string, jobs int) {
	t.Send(BatchStartMsg{Label: label, Dates: dates, Jobs: jobs})
}

func (t *TUI) ItemFinished(res downloader.Result) {
	t.Send(ItemMsg{Result: res})
}

func (t *TUI) BatchFinished(label string, summary downloader.Summary) {
	t.Send(BatchDoneMsg{Label: label, Summary: summary})
}

// Tripped forwards a breaker trip; register it with the scheduler's OnTrip
func (t *TUI) Tripped(stats scheduler.Stats) {
	t.Send(StatsMsg(stats))
}

// Done reports the end of the run; the monitor stays up until the user quits
func (t *TUI) Done(err error) {
	t.Send(DoneMsg{Err: err})
}
