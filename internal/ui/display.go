package ui

import (
	"os"

	"github.com/charmbracelet/x/term"
)

// DefaultTermWidth is used when the terminal width cannot be detected.
const DefaultTermWidth = 100

// Display describes the terminal output goes to.
type Display struct {
	Width int
	IsTTY bool
}

// DetectDisplay inspects f, usually os.Stdout.
func DetectDisplay(f *os.File) Display {
	d := Display{Width: DefaultTermWidth}
	if f == nil {
		return d
	}
	fd := f.Fd()
	d.IsTTY = term.IsTerminal(fd)
	if d.IsTTY {
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			d.Width = w
		}
	}
	return d
}
