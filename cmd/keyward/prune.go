// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/mail"
	"github.com/keyward/keyward/internal/store"
)

const defaultPruneTimeout = time.Minute

// NewPruneCmd creates the prune subcommand.
func NewPruneCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete expired sessions and email tokens",
		Long: `Removes sessions and verification or password-reset tokens whose expiry
has passed. Expired rows are already rejected at use, so pruning only reclaims space.
Safe to run from cron while the server is up.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPruneWithDeps(cmd, timeout, nil)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultPruneTimeout, "timeout for database operations")
	addDatabaseFlag(cmd)
	return cmd
}

func runPruneWithDeps(cmd *cobra.Command, timeout time.Duration, deps *CommonDeps) error {
	if deps == nil {
		deps = &CommonDeps{}
	}
	deps.applyDefaults()

	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	if err := requireDatabaseURL(cfg); err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	connectOpts := store.DefaultConnectOptions()
	connectOpts.MaxRetries = cfg.Database.ConnectRetries

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, connectOpts)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	logger := slog.Default()
	svc, _, err := buildService(cfg, deps.StoreFactory(pool), mail.NewLogSender(logger), logger, nil)
	if err != nil {
		return err
	}

	res, err := svc.PruneExpired(ctx)
	if err != nil {
		return err
	}

	logger.Info("pruned expired credentials", "sessions", res.Sessions, "tokens", res.Tokens)
	cmd.Printf("Pruned %d expired session(s) and %d expired token(s)\n", res.Sessions, res.Tokens)
	return nil
}
