package tui

import (
	"encoding/json"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// LogSink is an io.Writer for JSON log lines that feeds the log panel. Lines
// written while the panel is behind are dropped, so logging never blocks.
type LogSink struct {
	ch chan LogMsg
}

// NewLogSink creates a sink holding up to size unread lines
func NewLogSink(size int) *LogSink {
	if size < 1 {
		size = 1
	}
	return &LogSink{ch: make(chan LogMsg, size)}
}

// Write takes one JSON log line per call
func (s *LogSink) Write(p []byte) (int, error) {
	var entry struct {
		Level   string `json:"level"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(p, &entry); err != nil {
		entry.Level, entry.Message = "info", strings.TrimSpace(string(p))
	}

	msg := LogMsg{Level: strings.ToUpper(entry.Level), Message: entry.Message}
	if entry.Error != "" {
		msg.Message += ": " + entry.Error
	}

	select {
	case s.ch <- msg:
	default:
	}
	return len(p), nil
}

// next waits for the following line
func (s *LogSink) next() tea.Cmd {
	return func() tea.Msg {
		return <-s.ch
	}
}
