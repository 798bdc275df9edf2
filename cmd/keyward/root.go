// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// serviceName is the "service" attribute on every log record.
const serviceName = "keyward"

// NewRootCmd creates the root command for the keyward CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyward",
		Short: "Keyward - account registration and session authentication",
		Long: `Keyward serves user registration with email verification,
cookie sessions and emailed password resets over a JSON HTTP API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML, default $XDG_CONFIG_HOME/keyward/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewValidateSeedsCmd())
	cmd.AddCommand(NewPruneCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadConfig reads the layered configuration for a command. Without --config
// the XDG config file is used when present.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.DefaultConfigFile()
		if err != nil {
			return nil, err
		}
		path = found
	}
	return config.Load(path, flags)
}

// requireDatabaseURL is the validation used by commands that only touch the database.
func requireDatabaseURL(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required (set KEYWARD_DATABASE__URL or --database-url)")
	}
	return nil
}

// addDatabaseFlag registers --database-url on commands that do not take the
// full serve flag set. It is persistent so subcommands inherit it.
func addDatabaseFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")
}
