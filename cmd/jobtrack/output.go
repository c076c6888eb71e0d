package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// diag is where status messages go. Command results go to stdout.
var diag io.Writer = os.Stderr

// colorEnabled reports whether ANSI colors should be written to stderr.
func colorEnabled() bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorize(color, text string) string {
	if !colorOn {
		return text
	}
	return color + text + colorReset
}

// say writes one marked line, e.g. "✓ job added", in the given color.
func say(color, mark, format string, args []any) {
	fmt.Fprintln(diag, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { say(colorGreen, "✓", format, args) }
func printError(format string, args ...any)   { say(colorRed, "✗", format, args) }
func printWarning(format string, args ...any) { say(colorYellow, "⚠", format, args) }
func printStep(format string, args ...any)    { say(colorCyan, "→", format, args) }

// printStatus writes an indented "label: value" line.
func printStatus(label, format string, args ...any) {
	fmt.Fprintf(diag, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
