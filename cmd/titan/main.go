package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"titan/internal/config"
	"titan/internal/logging"
)

var (
	configPath string
	debug      bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "titan",
	Short: "Titan conversation server and CLI",
	Long:  "Titan runs the tool-calling AI chat core: a bounded inference loop with safety gating, deferred self-modification writes, and a streaming event surface.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if debug {
			cfg.Logging.Debug = true
		}
		if err := logging.Initialize(cfg.DataDir, cfg.Logging.Debug, cfg.Logging.Level); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		if cfg.Logging.Debug {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "titan.yaml", "path to the config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
