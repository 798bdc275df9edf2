// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/postgres"
	"github.com/keyward/keyward/internal/httpapi"
	"github.com/keyward/keyward/internal/mail"
	"github.com/keyward/keyward/internal/observability"
	"github.com/keyward/keyward/internal/store"
)

// Pool is the subset of *pgxpool.Pool the commands use.
type Pool interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// CommonDeps holds the database dependencies shared by every command that
// connects. Nil fields use their default implementations.
type CommonDeps struct {
	// PoolFactory connects to PostgreSQL.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, dsn string, opts store.ConnectOptions) (Pool, error)

	// StoreFactory builds the credential store over a pool.
	// Default: postgres.NewStore
	StoreFactory func(pool Pool) auth.CredentialStore
}

func (d *CommonDeps) applyDefaults() {
	if d.PoolFactory == nil {
		d.PoolFactory = func(ctx context.Context, dsn string, opts store.ConnectOptions) (Pool, error) {
			pool, err := store.Connect(ctx, dsn, opts)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if d.StoreFactory == nil {
		d.StoreFactory = func(pool Pool) auth.CredentialStore {
			return postgres.NewStore(pool)
		}
	}
}

// ServeDeps contains injectable dependencies for the serve command.
type ServeDeps struct {
	CommonDeps

	// MigratorFactory creates a migrator for --auto-migrate.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// SenderFactory builds the email driver.
	// Default: mail.New
	SenderFactory func(cfg mail.Config, logger *slog.Logger) (auth.EmailSender, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) ObservabilityServer

	// HTTPServerFactory creates the public API server.
	// Default: httpapi.New
	HTTPServerFactory func(svc *auth.Service, gate *auth.Gate, cfg httpapi.Config, opts ...httpapi.Option) (HTTPServer, error)
}

func (d *ServeDeps) applyDefaults() {
	d.CommonDeps.applyDefaults()
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if d.SenderFactory == nil {
		d.SenderFactory = mail.New
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if d.HTTPServerFactory == nil {
		d.HTTPServerFactory = func(svc *auth.Service, gate *auth.Gate, cfg httpapi.Config, opts ...httpapi.Option) (HTTPServer, error) {
			srv, err := httpapi.New(svc, gate, cfg, opts...)
			if err != nil {
				return nil, err
			}
			return srv, nil
		}
	}
}

// AutoMigrator wraps the methods serve uses from store.Migrator.
type AutoMigrator interface {
	Up() error
	Close() error
}

// MigrationRunner wraps the methods the migrate command uses from store.Migrator.
type MigrationRunner interface {
	AutoMigrator
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// HTTPServer wraps the methods used from httpapi.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
