package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"tagflow/internal/config"
	"tagflow/internal/logging"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "tagflow",
		Short:         "Identify, tag, and organize audio libraries",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newProcessCommand(&configFlag))
	rootCmd.AddCommand(newRetryCommand(&configFlag))
	rootCmd.AddCommand(newRollbackCommand(&configFlag))
	rootCmd.AddCommand(newStatusCommand(&configFlag))
	rootCmd.AddCommand(newConfigCommand(&configFlag))
	return rootCmd
}

// loadConfig resolves and validates the configuration for a command run.
func loadConfig(path string) (*config.Config, error) {
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if !exists && path != "" {
		return nil, fmt.Errorf("config file %s not found", resolved)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	outputs := []string{"stderr"}
	if cfg.Paths.LogDir != "" {
		outputs = append(outputs, filepath.Join(cfg.Paths.LogDir, "tagflow.log"))
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
	})
}
