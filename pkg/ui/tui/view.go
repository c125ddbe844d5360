package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pixivrank/pkg/pixiv"
)

// View renders the entire TUI
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	half := (m.width - 4) / 2

	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderBatchPanel(half),
		m.renderRecentPanel(half),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderSchedulerPanel(half),
		m.renderLogsPanel(half),
	)

	sections := []string{
		m.renderHeader(),
		lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right),
	}
	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q quit • ? help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m Model) renderHeader() string {
	status := m.spinner.View() + " running"
	switch {
	case m.finished && m.finalErr != nil:
		status = errorStyle.Render("✗ stopped")
	case m.finished:
		status = successStyle.Render("✓ done")
	}
	return headerStyle.Render(fmt.Sprintf("pixivrank  %s  %s", status, faintStyle.Render(formatDuration(time.Since(m.startTime)))))
}

func (m Model) renderBatchPanel(width int) string {
	title := titleStyle.Render(" BATCH " + m.label + " ")

	span := "-"
	if n := len(m.dates); n == 1 {
		span = m.dates[0]
	} else if n > 1 {
		span = fmt.Sprintf("%s..%s (%d days)", m.dates[0], m.dates[n-1], n)
	}

	lines := []string{
		field("Dates", span),
		m.bar.View(),
		fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
			labelStyle.Render("done"), successStyle.Render(fmt.Sprint(m.batch.Completed)),
			labelStyle.Render("failed"), errorStyle.Render(fmt.Sprint(m.batch.Failed)),
			labelStyle.Render("skipped"), faintStyle.Render(fmt.Sprint(m.batch.Skipped)),
			labelStyle.Render("of"), valueStyle.Render(fmt.Sprint(m.jobs)),
		),
		field("Run", fmt.Sprintf("%d batches, %d downloaded, %.1f/min", m.batches, m.run.Completed, m.Rate())),
	}

	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}

func (m Model) renderRecentPanel(width int) string {
	title := titleStyle.Render(" RECENT ")
	if len(m.recent) == 0 {
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, faintStyle.Render("Nothing finished yet")))
	}

	var rows []string
	for i := len(m.recent) - 1; i >= 0; i-- {
		it := m.recent[i]
		mark := map[ItemState]string{ItemCompleted: "✓", ItemFailed: "✗", ItemSkipped: "·", ItemAborted: "…"}[it.State]
		detail := it.Kind
		if it.Err != nil {
			detail = it.Err.Error()
		}
		if it.Blocked {
			detail += " [black]"
		}
		row := fmt.Sprintf("%s #%-3d %s %s", mark, it.Rank, pixiv.ArtworkURL(it.ID), detail)
		rows = append(rows, stateStyle(it.State).Render(truncate(row, width-4)))
	}

	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(rows, "\n")))
}

func (m Model) renderSchedulerPanel(width int) string {
	title := titleStyle.Render(" SCHEDULER ")
	s := m.sched

	pause := valueStyle.Render(s.PauseDuration.String())
	if s.Paused {
		pause = warningStyle.Render(fmt.Sprintf("pausing, %s left", time.Until(s.PausedUntil).Round(time.Second)))
	}
	breaker := successStyle.Render("closed")
	if s.Tripped {
		breaker = errorStyle.Render("TRIPPED")
	} else if s.ConsecutiveLimits > 0 {
		breaker = warningStyle.Render(fmt.Sprintf("%d consecutive 429", s.ConsecutiveLimits))
	}

	lines := []string{
		field("Requests", fmt.Sprint(s.Dispatched)),
		labelStyle.Render("Weight") + " " + weightStyle(s.NextPauseAt-s.Weight).Render(fmt.Sprintf("%d / next pause at %d", s.Weight, s.NextPauseAt)),
		labelStyle.Render("Pause") + " " + pause,
		field("Pauses", fmt.Sprint(s.Pauses)),
		field("Queued", fmt.Sprint(s.Queued)),
		labelStyle.Render("Breaker") + " " + breaker,
	}

	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}

func (m Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, l := range m.logMessages[start:] {
		ts := logTimestampStyle.Render(l.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(l.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", l.Level))
		logs = append(logs, fmt.Sprintf("%s %s %s", ts, level, truncate(l.Message, width-25)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = faintStyle.Render("No logs yet...")
	}

	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

func (m Model) renderHelp() string {
	help := `  q / ctrl+c   stop the run and quit
  ?            toggle this help
  ctrl+l       clear the log panel

  ` + successStyle.Render("✓") + ` downloaded  ` + errorStyle.Render("✗") + ` failed  · skipped  ` + warningStyle.Render("…") + ` not attempted`

	return panelStyle.Width(m.width - 2).Render(help)
}

func field(label, value string) string {
	return labelStyle.Render(label) + " " + valueStyle.Render(value)
}

// truncate shortens s to n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// formatDuration formats a duration as mm:ss or hh:mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
