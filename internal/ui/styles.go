package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette: default text, one accent for titles and links, muted gray for
// secondary information. Status is carried by symbols, not color.

const defaultAccent = "#A78BFA"

var accentColor = defaultAccent

var (
	// Accent highlights note titles and resolved links.
	Accent = lipgloss.NewStyle().Foreground(lipgloss.Color(defaultAccent))

	// Muted is for ids, timestamps and hints.
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))

	Bold = lipgloss.NewStyle().Bold(true)

	AccentBold = lipgloss.NewStyle().Foreground(lipgloss.Color(defaultAccent)).Bold(true)

	// Broken marks links whose title matches no visible note.
	Broken = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086")).Strikethrough(true)
)

// ConfigureTheme sets the accent color from the [ui] accent config value:
// an ANSI code (0-255) or a #rgb / #rrggbb hex color. "none", "off" or an
// invalid value turns the accent off.
func ConfigureTheme(accent string) {
	color, ok := normalizeAccentColor(accent)
	if strings.TrimSpace(accent) == "" {
		color, ok = defaultAccent, true
	}
	if !ok {
		accentColor = ""
		Accent = lipgloss.NewStyle()
		AccentBold = lipgloss.NewStyle().Bold(true)
		return
	}
	accentColor = color
	Accent = lipgloss.NewStyle().Foreground(lipgloss.Color(color))
	AccentBold = lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
}

// AccentColor returns the configured accent, if any.
func AccentColor() (string, bool) {
	return accentColor, accentColor != ""
}

func normalizeAccentColor(v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "", "none", "off", "default":
		return "", false
	}
	if strings.HasPrefix(v, "#") {
		hex := v[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return "", false
		}
		if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
			return "", false
		}
		return "#" + hex, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 255 {
		return "", false
	}
	return strconv.Itoa(n), true
}
