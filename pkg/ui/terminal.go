package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"pixivrank/pkg/filter"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔═══════════════════════════════════════════════════════════════════╗
    ║ ██████╗ ██╗██╗  ██╗██╗██╗   ██╗██████╗  █████╗ ███╗   ██╗██╗  ██╗ ║
    ║ ██╔══██╗██║╚██╗██╔╝██║██║   ██║██╔══██╗██╔══██╗████╗  ██║██║ ██╔╝ ║
    ║ ██████╔╝██║ ╚███╔╝ ██║██║   ██║██████╔╝███████║██╔██╗ ██║█████╔╝  ║
    ║ ██╔═══╝ ██║ ██╔██╗ ██║╚██╗ ██╔╝██╔══██╗██╔══██║██║╚██╗██║██╔═██╗  ║
    ║ ██║     ██║██╔╝ ██╗██║ ╚████╔╝ ██║  ██║██║  ██║██║ ╚████║██║  ██╗ ║
    ║ ╚═╝     ╚═╝╚═╝  ╚═╝╚═╝  ╚═══╝  ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝ ║
    ║                      DAILY RANKING HARVESTER                      ║
    ╚═══════════════════════════════════════════════════════════════════╝
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

var (
	quiet   atomic.Bool
	noColor atomic.Bool
)

// Out receives everything the Print helpers write
var Out io.Writer = os.Stdout

// SetQuietMode suppresses everything but errors
func SetQuietMode(on bool) { quiet.Store(on) }

// IsQuietMode reports whether quiet mode is on
func IsQuietMode() bool { return quiet.Load() }

// SetNoColor disables the ANSI color codes
func SetNoColor(on bool) { noColor.Store(on) }

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if noColor.Load() {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	if IsQuietMode() {
		return
	}
	fmt.Fprint(Out, Cyan(ASCIILogo))
}

// PrintError prints an error message in red. Errors are shown in quiet mode.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Out, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Out, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(Out, Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintf(Out, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if IsQuietMode() {
		return
	}
	if len(args) > 0 {
		fmt.Fprintln(Out, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Out, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(Out, Magenta(msg))
}

// PrintRuleSummary lists how many filter rules of each kind are active
func PrintRuleSummary(s filter.Summary) {
	if IsQuietMode() {
		return
	}
	if !s.Active() {
		fmt.Fprintln(Out, Dim("No tag rules, every ranked work is a candidate"))
		return
	}

	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.Tags, "allow tags")
	add(s.Block, "block tags")
	add(s.NoWord, "blocked words")
	add(s.BlockGroups, "block groups")
	add(s.Conditionals, "conditional rules")
	PrintInfo("Rules", strings.Join(parts, ", "))
}
