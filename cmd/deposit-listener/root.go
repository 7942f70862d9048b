package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/devblac/deposit-listener/internal/config"
	"github.com/devblac/deposit-listener/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	logLevel  string
	logPretty bool
	rootCmd   = &cobra.Command{
		Use:   "deposit-listener",
		Short: "Scan EVM block ranges for Deposit events and append them to a CSV log",
	}
)

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to $LOG_LEVEL or info")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "Colorized console logs")

	rootCmd.AddCommand(
		versionCmd,
		initCmd,
		validateCmd,
		scanCmd,
		watchCmd,
		stateCmd,
		exportCmd,
	)
}

// Execute runs the root command tree.
func Execute() error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	return logging.NewWithOptions(logging.Options{Level: level, Pretty: logPretty, Writer: cmd.ErrOrStderr()})
}

// loadConfig falls back to the built-in chains when the default config file is absent.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}
