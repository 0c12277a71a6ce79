package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/greg-hellings/reqdesk/pkg/config"
	"github.com/greg-hellings/reqdesk/pkg/shell"
	"github.com/greg-hellings/reqdesk/pkg/state"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

// Global (root-level) flag variables
var (
	flagVerbose bool
	flagDebug   bool
	flagConfig  string
	flagDev     bool
	flagNoColor bool
)

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		// If Execute() returns an error, logging may or may not be initialized yet.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reqdesk",
		Short: "reqdesk CLI",
		Long: strings.TrimSpace(`
reqdesk - deep-link handler and request importer

Handles insomnia:// links delivered by the operating system (alerts, login,
imports, plugin and theme installs, OAuth callbacks) and converts requests
copied from a browser's "Copy as fetch" into structured requests.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (info) logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging (overrides --verbose)")
	cmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Configuration file (YAML or .toml)")
	cmd.PersistentFlags().BoolVar(&flagDev, "dev", false, "Development runtime: accept the development scheme")
	cmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable ANSI colors")
	cmd.Version = version

	// Add subcommands
	cmd.AddCommand(newOpenCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newOAuthCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newStateCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// newVersionCmd prints version info (simple helper).
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reqdesk version: %s\n", version)
		},
	}
}

func initLogging() {
	var level slog.Level
	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	default:
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging initialized", "level", level.String())
}

// loadConfig reads --config, or <user config>/reqdesk/config.yaml when it
// exists, or falls back to defaults.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		candidate := filepath.Join(state.UserConfigDir(), "reqdesk", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		slog.Debug("Configuration loaded", "path", path)
	}
	if flagDev {
		cfg.Scheme.Development = true
	}
	return cfg, nil
}

// terminalDialogs renders dialogs on the command's streams.
func terminalDialogs(cmd *cobra.Command, app *shell.App, assumeYes bool) *shell.TerminalDialogs {
	return &shell.TerminalDialogs{
		In:        cmd.InOrStdin(),
		Out:       cmd.OutOrStdout(),
		Runtime:   app.Runtime,
		Plugins:   app.Plugins,
		AssumeYes: assumeYes,
		Colors:    useColors(cmd),
	}
}

func useColors(cmd *cobra.Command) bool {
	if flagNoColor {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
