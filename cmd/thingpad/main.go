package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/thingpad"
	"github.com/jward/thingpad/internal/config"
	"github.com/jward/thingpad/internal/logging"
)

var (
	flagDB     string
	flagConfig string
	flagFormat string
)

// Loaded in PersistentPreRunE.
var (
	cfg  config.Config
	logs *logging.Provider
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "thingpad",
	Short:         "Live code evaluator blocks for HTML pages",
	Long:          "Thingpad stores code snippets, evaluates them on a canvas surface and renders them as live widget blocks.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		c, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagDB != "" {
			c.Database.Path = flagDB
		}
		p, err := logging.NewProvider(logging.Config{Level: c.Log.Level, Format: c.Log.Format})
		if err != nil {
			return err
		}
		cfg, logs = c, p
		return nil
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: database.path from config, thingpad.db)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: thingpad.yaml in . or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// engineOptions turns the loaded config into engine options.
func engineOptions(component string) []thingpad.Option {
	return []thingpad.Option{
		thingpad.WithTimeout(cfg.Eval.Timeout),
		thingpad.WithSurfaceLimit(cfg.Surface.MaxWidth, cfg.Surface.MaxHeight),
		thingpad.WithLogger(logs.Named(component)),
	}
}

// openEngine opens the configured database, creating its directory.
func openEngine(component string, extra ...thingpad.Option) (*thingpad.Engine, error) {
	dbPath := cfg.Database.Path
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	e, err := thingpad.New(dbPath, append(engineOptions(component), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

// openEngineNoStore creates an engine for commands that never touch the
// database.
func openEngineNoStore(component string) (*thingpad.Engine, error) {
	e, err := thingpad.New("", engineOptions(component)...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

// readSource returns the snippet from the argument or "-" / no argument for
// stdin.
func readSource(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(b), nil
}
