// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nomadiqe/nomadiqe/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Nomadiqe CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nomadiqe",
		Short: "Nomadiqe - identity and onboarding service",
		Long: `Nomadiqe runs the account API: password and provider sign-in,
email verification, password recovery and role-based onboarding.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/nomadiqe/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewTokensCmd())
	cmd.AddCommand(NewAccountsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("nomadiqe " + formatVersion())
		},
	}
}

// loadConfig reads the config file named by --config, overlays the command's
// flags and the environment, and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(configFile, os.Getenv), cmd.Flags(), os.Getenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
