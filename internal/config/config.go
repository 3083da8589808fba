// Package config handles global Dendrite configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAutosaveInterval = 5 * time.Second
	DefaultSearchDebounce   = 300 * time.Millisecond
	DefaultServerAddr       = "127.0.0.1:8484"
)

// Config represents the global Dendrite configuration.
type Config struct {
	// Database is the path to the SQLite note store.
	Database string `toml:"database"`

	// AutosaveInterval is how often an open editing session saves a dirty draft.
	AutosaveInterval Duration `toml:"autosave_interval"`

	// SearchDebounce is the quiet period before search input is applied.
	SearchDebounce Duration `toml:"search_debounce"`

	// DefaultSort is the list order: date-created, title-asc or most-tags.
	DefaultSort string `toml:"default_sort"`

	// StateFile overrides where the login session is kept.
	StateFile string `toml:"state_file"`

	// Editor is the editor to use for `dendrite edit` (defaults to $EDITOR).
	Editor string `toml:"editor"`

	Server ServerConfig `toml:"server"`
	UI     UIConfig     `toml:"ui"`
}

// ServerConfig configures `dendrite serve`.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// UIConfig represents optional CLI theming preferences.
type UIConfig struct {
	// Accent is an optional accent color for CLI output and markdown rendering.
	// Supported values are ANSI color codes ("0" to "255") or hex colors ("#RRGGBB").
	Accent string `toml:"accent"`
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load loads the configuration from the default location.
// Returns a default config if the file doesn't exist.
func Load() (*Config, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom loads the configuration from a specific path.
// A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	var config Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &config, nil
	}
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &config, nil
}

// DefaultPath returns the default config file path.
// Checks ~/.config/dendrite/config.toml first (XDG style),
// then falls back to OS-specific location.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		xdgPath := filepath.Join(home, ".config", "dendrite", "config.toml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "dendrite", "config.toml")
	}

	return filepath.Join(".", "config.toml")
}

// DefaultDatabasePath returns ~/.local/share/dendrite/dendrite.db.
func DefaultDatabasePath() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "dendrite", "dendrite.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "dendrite", "dendrite.db")
	}
	return "dendrite.db"
}

// CreateDefault writes a commented default config file if none exists.
func CreateDefault(path string) (string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	defaultConfig := `# Dendrite Configuration

# Note database (defaults to ~/.local/share/dendrite/dendrite.db)
# database = "/path/to/dendrite.db"

# How often an open note is auto-saved while editing
# autosave_interval = "5s"

# Quiet period before search input is applied
# search_debounce = "300ms"

# List order: date-created, title-asc or most-tags
# default_sort = "date-created"

# Editor for 'dendrite edit' (defaults to $EDITOR)
# editor = "vim"

# [server]
# addr = "127.0.0.1:8484"

# Optional UI accent color (ANSI 0-255 or #RRGGBB)
# [ui]
# accent = "39"
`
	if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

// GetDatabasePath returns the configured database path, expanding a leading ~.
func (c *Config) GetDatabasePath() string {
	p := strings.TrimSpace(c.Database)
	if p == "" {
		return DefaultDatabasePath()
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// GetAutosaveInterval returns the auto-save period.
func (c *Config) GetAutosaveInterval() time.Duration {
	if c.AutosaveInterval.Duration > 0 {
		return c.AutosaveInterval.Duration
	}
	return DefaultAutosaveInterval
}

// GetSearchDebounce returns the search debounce window.
func (c *Config) GetSearchDebounce() time.Duration {
	if c.SearchDebounce.Duration > 0 {
		return c.SearchDebounce.Duration
	}
	return DefaultSearchDebounce
}

// GetServerAddr returns the HTTP listen address.
func (c *Config) GetServerAddr() string {
	if c.Server.Addr != "" {
		return c.Server.Addr
	}
	return DefaultServerAddr
}

// GetEditor returns the editor to use, falling back to $EDITOR.
func (c *Config) GetEditor() string {
	if c.Editor != "" {
		return c.Editor
	}
	return os.Getenv("EDITOR")
}
