package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"pixivrank/pkg/config"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", "--app-name=pixivrank", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	escape := func(s string) string {
		return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
	}
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$xml = @"
<toast>
	<visual>
		<binding template="ToastText02">
			<text id="1">%s</text>
			<text id="2">%s</text>
		</binding>
	</visual>
</toast>
"@
		$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$doc.LoadXml($xml)
		$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("pixivrank").Show($toast)
	`, escape(title), escape(message))

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

// Notifier prints run events and, for the desktop type, also raises a system
// notification. Which events are reported follows the notifications section.
type Notifier struct {
	cfg     config.NotificationConfig
	sender  NotificationSender
	console bool
}

// NewNotifier creates a Notifier for the current platform
func NewNotifier(cfg config.NotificationConfig) *Notifier {
	n := &Notifier{cfg: cfg, console: true}

	switch strings.ToLower(cfg.NotificationType) {
	case "none":
		n.console = false
		return n
	case "desktop":
		n.sender = platformSender()
	}
	return n
}

// WithSender replaces the platform sender
func (n *Notifier) WithSender(s NotificationSender) *Notifier {
	n.sender = s
	return n
}

func platformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// Complete reports a finished run
func (n *Notifier) Complete(title, message string) {
	if !n.cfg.Enabled || !n.cfg.OnComplete {
		return
	}
	n.emit(Green, title, message)
}

// Error reports a run that ended with an error
func (n *Notifier) Error(title, message string) {
	if !n.cfg.Enabled || !n.cfg.OnError {
		return
	}
	n.emit(Red, title, message)
}

// RateLimit reports a tripped rate-limit breaker
func (n *Notifier) RateLimit(title, message string) {
	if !n.cfg.Enabled || !n.cfg.OnRateLimit {
		return
	}
	n.emit(Yellow, title, message)
}

func (n *Notifier) emit(color func(string) string, title, message string) {
	if n.console && !IsQuietMode() {
		fmt.Fprintf(Out, "\n%s: %s\n", color(title), message)
	}
	if n.sender != nil {
		// desktop notifications are best effort
		_ = n.sender.Send(title, message)
	}
}
