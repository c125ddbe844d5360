package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	pixivBlue = lipgloss.Color("#0096FA")
	leafGreen = lipgloss.Color("#3CCB7F")
	amber     = lipgloss.Color("#FFB300")
	alertRed  = lipgloss.Color("#FF4B4B")
	dimWhite  = lipgloss.Color("#B0B0B0")
	darkBg    = lipgloss.Color("#14171F")
	panelBg   = lipgloss.Color("#1E2330")

	baseStyle = lipgloss.NewStyle().
			Background(darkBg).
			Foreground(dimWhite)

	headerStyle = lipgloss.NewStyle().
			Foreground(pixivBlue).
			Bold(true).
			Padding(1, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(pixivBlue).
			Background(panelBg).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Background(pixivBlue).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(pixivBlue).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	successStyle = lipgloss.NewStyle().
			Foreground(leafGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(alertRed).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(amber).
			Bold(true)

	faintStyle = lipgloss.NewStyle().
			Foreground(dimWhite).
			Faint(true)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Padding(0, 1)
)

// stateStyle colors an item by outcome
func stateStyle(s ItemState) lipgloss.Style {
	switch s {
	case ItemCompleted:
		return successStyle
	case ItemFailed:
		return errorStyle
	case ItemAborted:
		return warningStyle
	default:
		return faintStyle
	}
}

// weightStyle turns amber, then red, as the next pause gets close
func weightStyle(untilPause int) lipgloss.Style {
	switch {
	case untilPause <= 5:
		return errorStyle
	case untilPause <= 15:
		return warningStyle
	default:
		return valueStyle
	}
}
