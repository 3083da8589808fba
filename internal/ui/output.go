package ui

import "fmt"

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolInfo    = "ℹ"
)

// Success prefixes msg with a check mark.
func Success(msg string) string {
	return SymbolSuccess + " " + msg
}

// Successf formats and prefixes with a check mark.
func Successf(format string, args ...any) string {
	return Success(fmt.Sprintf(format, args...))
}

// Error prefixes msg with a cross.
func Error(msg string) string {
	return SymbolError + " " + msg
}

// Errorf formats and prefixes with a cross.
func Errorf(format string, args ...any) string {
	return Error(fmt.Sprintf(format, args...))
}

// Warning prefixes msg with a warning sign.
func Warning(msg string) string {
	return SymbolWarning + " " + msg
}

// Warningf formats and prefixes with a warning sign.
func Warningf(format string, args ...any) string {
	return Warning(fmt.Sprintf(format, args...))
}

// Info prefixes msg with an info sign.
func Info(msg string) string {
	return SymbolInfo + " " + msg
}

// Header renders a section header.
func Header(msg string) string {
	return Bold.Render(msg)
}

// Title renders a note title.
func Title(title string) string {
	if title == "" {
		title = "Untitled"
	}
	return AccentBold.Render(title)
}

// Hint renders secondary text.
func Hint(msg string) string {
	return Muted.Render(msg)
}

// Count renders "(n things)".
func Count(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("(%d %s)", n, singular)
	}
	return fmt.Sprintf("(%d %s)", n, plural)
}
