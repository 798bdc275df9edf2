// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/httpapi"
	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/observability"
	"github.com/keyward/keyward/internal/store"
)

const (
	readinessTimeout       = 2 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the public HTTP API and the metrics/health listener.
Connects to PostgreSQL with retry, optionally applies pending migrations,
and shuts down gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.BindFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.SetDefault(cfg.LoggingOptions(serviceName, version))
	if err != nil {
		return oops.Code("LOGGING_SETUP_FAILED").Wrap(err)
	}

	logger.Info("starting keyward",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"mail_driver", cfg.Mail.Driver,
		"api_version", httpapi.APIVersion(),
	)

	connectOpts := store.DefaultConnectOptions()
	connectOpts.MaxRetries = cfg.Database.ConnectRetries
	connectOpts.MaxConns = cfg.Database.MaxConns

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, connectOpts)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	sender, err := deps.SenderFactory(cfg.MailConfig(), logger)
	if err != nil {
		return oops.Code("MAIL_SETUP_FAILED").With("driver", cfg.Mail.Driver).Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, observability.PingReadiness(pool, readinessTimeout))
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
	}

	credentials := deps.StoreFactory(pool)
	svc, gate, err := buildService(cfg, credentials, sender, logger, metrics)
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}

	httpOpts := []httpapi.Option{httpapi.WithLogger(logger)}
	if metrics != nil {
		httpOpts = append(httpOpts, httpapi.WithRecorder(metrics))
	}
	httpServer, err := deps.HTTPServerFactory(svc, gate, httpapi.Config{
		Addr:           cfg.HTTP.Addr,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		SecureCookies:  cfg.HTTP.SecureCookies,
	}, httpOpts...)
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("HTTP_SETUP_FAILED").Wrap(err)
	}
	httpErrCh, err := httpServer.Start()
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("HTTP_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, httpErrCh, "http")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("keyward listening on " + httpServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// buildService wires the auth core over a credential store.
func buildService(
	cfg *config.Config,
	credentials auth.CredentialStore,
	sender auth.EmailSender,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (*auth.Service, *auth.Gate, error) {
	tokens, err := auth.NewTokenManager(credentials, auth.WithTokenLength(cfg.Tokens.Length))
	if err != nil {
		return nil, nil, err
	}
	notifier := auth.NewNotifier(sender, cfg.NotifierConfig())

	opts := []auth.ServiceOption{auth.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, auth.WithObserver(metrics))
	}
	svc, err := auth.NewService(credentials, tokens, auth.NewArgon2idHasher(), notifier, cfg.ServiceConfig(), opts...)
	if err != nil {
		return nil, nil, err
	}
	return svc, auth.NewGate(credentials), nil
}

// autoMigrate applies pending migrations before the server starts.
func autoMigrate(deps *ServeDeps, databaseURL string, logger *slog.Logger) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

func stopObservability(obsServer ObservabilityServer, logger *slog.Logger) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		logger.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports a serve failure. It
// returns when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
