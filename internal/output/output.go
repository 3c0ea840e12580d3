// Package output provides formatted output utilities for the CLI.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Writer handles CLI output formatting.
type Writer struct {
	out   io.Writer
	err   io.Writer
	color bool
	quiet bool
}

// New creates a new Writer with default settings.
func New() *Writer {
	return &Writer{
		out:   os.Stdout,
		err:   os.Stderr,
		color: isTerminal(),
	}
}

// NewWithWriters creates a Writer with custom io.Writers (for testing).
func NewWithWriters(out, err io.Writer, color bool) *Writer {
	return &Writer{
		out:   out,
		err:   err,
		color: color,
	}
}

// SetQuiet enables or disables quiet mode.
func (w *Writer) SetQuiet(quiet bool) {
	w.quiet = quiet
}

// Quiet reports whether quiet mode is enabled.
func (w *Writer) Quiet() bool {
	return w.quiet
}

// Print writes to stdout.
func (w *Writer) Print(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}

// Println writes a line to stdout.
func (w *Writer) Println(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format+"\n", args...)
}

// Error writes to stderr.
func (w *Writer) Error(format string, args ...interface{}) {
	fmt.Fprintf(w.err, format, args...)
}

// Errorln writes a line to stderr.
func (w *Writer) Errorln(format string, args ...interface{}) {
	fmt.Fprintf(w.err, format+"\n", args...)
}

// Info prints an info message (skipped in quiet mode).
func (w *Writer) Info(format string, args ...interface{}) {
	if w.quiet {
		return
	}
	w.Println(format, args...)
}

// Warning prints a warning message to stderr.
func (w *Writer) Warning(format string, args ...interface{}) {
	if w.color {
		w.Errorln(yellow+"warning:"+reset+" "+format, args...)
	} else {
		w.Errorln("warning: "+format, args...)
	}
}

// ErrorPrefix prints an error message to stderr with an "error:" prefix.
func (w *Writer) ErrorPrefix(format string, args ...interface{}) {
	if w.color {
		w.Errorln(red+"error:"+reset+" "+format, args...)
	} else {
		w.Errorln("error: "+format, args...)
	}
}

// Success prints a success message (skipped in quiet mode).
func (w *Writer) Success(format string, args ...interface{}) {
	if w.quiet {
		return
	}
	if w.color {
		w.Println(green+"✓"+reset+" "+format, args...)
	} else {
		w.Println(format, args...)
	}
}

// TargetStart prints the header line for a target run.
func (w *Writer) TargetStart(label, name string) {
	if w.quiet {
		return
	}
	if w.color {
		w.Println(bold+"[%s]"+reset+" %s", label, name)
	} else {
		w.Println("[%s] %s", label, name)
	}
}

// TargetFailed prints a target run failure.
func (w *Writer) TargetFailed(name string, err error) {
	if w.color {
		w.Errorln(red+"[%s] failed:"+reset+" %v", name, err)
	} else {
		w.Errorln("[%s] failed: %v", name, err)
	}
}

// Section prints a section header.
func (w *Writer) Section(title string) {
	if w.quiet {
		return
	}
	w.Println("")
	if w.color {
		w.Println(bold+"=== %s ==="+reset, title)
	} else {
		w.Println("=== %s ===", title)
	}
}

// List prints a list of items.
func (w *Writer) List(items []string) {
	for _, item := range items {
		w.Println("  - %s", item)
	}
}

// Table prints a simple table.
func (w *Writer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var headerParts []string
	for i, h := range headers {
		headerParts = append(headerParts, fmt.Sprintf("%-*s", widths[i], h))
	}
	w.Println(strings.Join(headerParts, "  "))

	var sepParts []string
	for _, width := range widths {
		sepParts = append(sepParts, strings.Repeat("-", width))
	}
	w.Println(strings.Join(sepParts, "  "))

	for _, row := range rows {
		var rowParts []string
		for i, cell := range row {
			if i < len(widths) {
				rowParts = append(rowParts, fmt.Sprintf("%-*s", widths[i], cell))
			}
		}
		w.Println(strings.Join(rowParts, "  "))
	}
}

// isTerminal returns true if stdout is a terminal.
func isTerminal() bool {
	if fi, _ := os.Stdout.Stat(); fi != nil {
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// ANSI color codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
)
