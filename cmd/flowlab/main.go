package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/flowlab/internal/config"
)

var (
	configFile string
	dataDir    string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "flowlab",
		Short:         "step through water resource network models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadSettings(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "flowlab.yaml", "settings file (yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "run data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "log format (text, json)")

	rootCmd.AddCommand(
		newRunCmd(),
		newStepCmd(),
		newScriptCmd(),
		newBatchCmd(),
		newValidateCmd(),
		newListCmd(),
		newPlotCmd(),
		newExportCmd(),
		newEditCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadSettings reads the settings file, then lets explicitly set flags win.
func loadSettings(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	return nil
}
