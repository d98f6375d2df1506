// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/aptitude/internal/config"
	"github.com/holomush/aptitude/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the aptitude CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aptitude",
		Short: "aptitude - account registration and session tokens",
		Long: `aptitude registers accounts, authenticates them by phone number
and password, and issues signed session tokens for the aptitude test platform.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file path (YAML, default $XDG_CONFIG_HOME/aptitude/config.yaml when present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// configPath returns --config, or the XDG config file when it exists.
func configPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return xdg.FindConfigFile() //nolint:wrapcheck // already coded
}

// loadConfig reads the layered configuration for cmd and validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err //nolint:wrapcheck // config errors carry their own codes
	}
	if err := cfg.Validate(); err != nil {
		return nil, err //nolint:wrapcheck // config errors carry their own codes
	}
	return cfg, nil
}
