package main

import (
	"fmt"
	"io"
	"os"
)

// ANSI SGR sequences. Richer styling lives in the chat TUI; one-shot
// commands stick to these.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// diagnostics receives status lines so stdout stays clean for data.
var diagnostics io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// notef prints one marked diagnostic line.
func notef(color, mark, format string, args ...any) {
	fmt.Fprintln(diagnostics, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notef(colorGreen, "✓", format, args...) }
func printError(format string, args ...any)   { notef(colorRed, "✗", format, args...) }
func printWarning(format string, args ...any) { notef(colorYellow, "⚠", format, args...) }
func printStep(format string, args ...any)    { notef(colorCyan, "→", format, args...) }

// printStatus prints an indented "label: value" pair.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(diagnostics, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
