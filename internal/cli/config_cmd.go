package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/dendrite/internal/config"
	"github.com/aidanlsb/dendrite/internal/errcode"
	"github.com/aidanlsb/dendrite/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file if none exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefault(resolvedConfigPath)
		if err != nil {
			return handleErrorCode(errcode.FileWriteError, err, "")
		}
		if isJSONOutput() {
			outputSuccess(map[string]string{"config": path}, nil)
			return nil
		}
		fmt.Println(ui.Successf("Config at %s", path))
		return nil
	},
}

// ConfigPaths is the JSON output of `config show`.
type ConfigPaths struct {
	Config           string `json:"config"`
	State            string `json:"state"`
	Database         string `json:"database"`
	AutosaveInterval string `json:"autosave_interval"`
	SearchDebounce   string `json:"search_debounce"`
	DefaultSort      string `json:"default_sort,omitempty"`
	Editor           string `json:"editor,omitempty"`
	ServerAddr       string `json:"server_addr"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := ConfigPaths{
			Config:           resolvedConfigPath,
			State:            resolvedStatePath,
			Database:         resolvedDBPath,
			AutosaveInterval: cfg.GetAutosaveInterval().String(),
			SearchDebounce:   cfg.GetSearchDebounce().String(),
			DefaultSort:      cfg.DefaultSort,
			Editor:           cfg.GetEditor(),
			ServerAddr:       cfg.GetServerAddr(),
		}
		if isJSONOutput() {
			outputSuccess(paths, nil)
			return nil
		}
		t := ui.NewTable("SETTING", "VALUE")
		t.AddRow("config", paths.Config)
		t.AddRow("state", paths.State)
		t.AddRow("database", paths.Database)
		t.AddRow("autosave_interval", paths.AutosaveInterval)
		t.AddRow("search_debounce", paths.SearchDebounce)
		t.AddRow("default_sort", paths.DefaultSort)
		t.AddRow("editor", paths.Editor)
		t.AddRow("server.addr", paths.ServerAddr)
		fmt.Print(t.String())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
