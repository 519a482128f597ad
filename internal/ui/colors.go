// Package ui styles terminal output. Styling is off when NO_COLOR is set or
// stdout is not a terminal.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI escape sequences; empty strings while styling is disabled
var (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[97m"
	ColorRed    = "\033[31m"
)

func init() {
	if _, ok := os.LookupEnv("NO_COLOR"); ok || !isTerminal(os.Stdout) {
		SetEnabled(false)
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetEnabled switches styling on or off for the whole process
func SetEnabled(on bool) {
	if !on {
		ColorReset, ColorBold, ColorDim = "", "", ""
		ColorCyan, ColorGreen, ColorYellow, ColorWhite, ColorRed = "", "", "", "", ""
		return
	}
	ColorReset, ColorBold, ColorDim = "\033[0m", "\033[1m", "\033[2m"
	ColorCyan, ColorGreen, ColorYellow = "\033[36m", "\033[32m", "\033[33m"
	ColorWhite, ColorRed = "\033[97m", "\033[31m"
}

// Enabled reports whether output is styled
func Enabled() bool {
	return ColorReset != ""
}

func wrap(style, s string) string {
	if style == "" {
		return s
	}
	return style + s + ColorReset
}

func Bold(s string) string { return wrap(ColorBold, s) }
func Success(s string) string { return wrap(ColorGreen, s) }
func Info(s string) string { return wrap(ColorDim+ColorYellow, s) }
func Error(s string) string { return wrap(ColorRed, s) }
func Value(s string) string { return wrap(ColorWhite, s) }
func Name(s string) string { return wrap(ColorCyan, s) }

// Field writes an indented "label: value" summary line
func Field(w io.Writer, label string, value ...any) {
	fmt.Fprintf(w, "  %s", Bold(label+":"))
	for _, v := range value {
		fmt.Fprintf(w, " %v", v)
	}
	fmt.Fprintln(w)
}
