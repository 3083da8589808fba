// Package cli implements the command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/dendrite/internal/config"
	"github.com/aidanlsb/dendrite/internal/errcode"
	"github.com/aidanlsb/dendrite/internal/identity"
	"github.com/aidanlsb/dendrite/internal/store"
	"github.com/aidanlsb/dendrite/internal/ui"
	"github.com/aidanlsb/dendrite/internal/workspace"
)

var (
	// Global flags
	configPath    string
	statePathFlag string
	dbPathFlag    string
	debugFlag     bool

	// Resolved values
	resolvedConfigPath string
	resolvedStatePath  string
	resolvedDBPath     string
	cfg                *config.Config
	logger             = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "dendrite",
	Short: "Dendrite - linked notes",
	Long: `Dendrite keeps notes that link to each other with [[Title]] references.
Links resolve by title, backlinks are derived on the fly, and notes can be
shared with other accounts to view, edit or administer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if debugFlag {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		warnings = nil

		var err error
		cfg, resolvedConfigPath, err = loadGlobalConfigWithPath()
		if err != nil {
			return handleErrorMsg(errcode.ConfigInvalid, err.Error(), "Fix or remove the config file")
		}
		resolvedStatePath = config.ResolveStatePath(statePathFlag, resolvedConfigPath, cfg)
		resolvedDBPath = dbPathFlag
		if strings.TrimSpace(resolvedDBPath) == "" {
			resolvedDBPath = cfg.GetDatabasePath()
		}
		ui.ConfigureTheme(cfg.UI.Accent)
		logger.Debug("configuration loaded", "config", resolvedConfigPath, "state", resolvedStatePath, "db", resolvedDBPath)
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	switch {
	case err == nil, errors.Is(err, errReported):
	case jsonOutput:
		outputError(errcode.InvalidInput, err.Error(), nil, "Run 'dendrite help' for usage")
	default:
		fmt.Fprintln(os.Stderr, ui.Error(err.Error()))
		if hint := hintFor(err); hint != "" {
			fmt.Fprintln(os.Stderr, ui.Hint(hint))
		}
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&statePathFlag, "state", "", "Path to state file (overrides state_file in config)")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "Path to the note database (overrides database in config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (for agent/script use)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Log debug output to stderr")
}

func loadGlobalConfigWithPath() (*config.Config, string, error) {
	resolvedPath := config.ResolveConfigPath(configPath)

	var loadedCfg *config.Config
	var err error
	if strings.TrimSpace(configPath) != "" {
		loadedCfg, err = config.LoadFrom(configPath)
	} else {
		loadedCfg, err = config.Load()
	}
	if err != nil {
		return nil, "", err
	}
	if loadedCfg == nil {
		loadedCfg = &config.Config{}
	}
	return loadedCfg, resolvedPath, nil
}

func openStore() (*store.SQLite, error) {
	return store.Open(resolvedDBPath, store.WithLogger(logger))
}

func identityService(db *store.SQLite) *identity.Service {
	return identity.New(db, resolvedStatePath, logger)
}

// session is an open store plus the logged-in user's loaded workspace.
type session struct {
	db *store.SQLite
	ws *workspace.Workspace
}

func (s *session) Close() {
	if s != nil && s.db != nil {
		_ = s.db.Close()
	}
}

// openSession opens the store and loads the workspace of the logged-in user.
// Errors are already routed through handleError; callers return them as is.
func openSession(ctx context.Context) (*session, error) {
	db, err := openStore()
	if err != nil {
		return nil, handleError(err, "Check the database path")
	}
	user, err := identityService(db).Current(ctx)
	if err != nil {
		db.Close()
		return nil, handleError(err, "Run 'dendrite login' first")
	}
	ws := workspace.New(db, user, workspace.WithLogger(logger))
	if err := ws.Load(ctx); err != nil {
		db.Close()
		return nil, handleError(err, "")
	}
	for _, ref := range ws.MissingShared() {
		warn(Warning{
			Code:    WarnSharedMissing,
			Message: fmt.Sprintf("note %s shared with you is no longer available", ref.NoteID),
		})
	}
	return &session{db: db, ws: ws}, nil
}
