// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// SeedUser is one account in a fixtures file.
type SeedUser struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Verified bool   `yaml:"verified"`
}

// SeedFile is the document read by seed and validate-seeds.
type SeedFile struct {
	Users []SeedUser `yaml:"users"`
}

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create fixture accounts from a YAML file",
		Long: `Creates the accounts listed in a fixtures file, hashing each password.
This command is idempotent - accounts whose username or email already exist are skipped.

Fixtures format:
  users:
    - username: alice
      email: alice@example.com
      password: "Secr3t!pass"
      verified: true`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeedWithDeps(cmd, cfg, nil)
		},
	}

	cmd.Flags().StringVarP(&cfg.file, "file", "f", "", "fixtures file (YAML)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	addDatabaseFlag(cmd)
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// loadSeedFile parses a fixtures file.
func loadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("SEED_READ_FAILED").With("file", path).Wrap(err)
	}
	var seeds SeedFile
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return nil, oops.Code("SEED_PARSE_FAILED").With("file", path).Wrap(err)
	}
	return &seeds, nil
}

func runSeedWithDeps(cmd *cobra.Command, opts *seedConfig, deps *CommonDeps) error {
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

	seeds, err := loadSeedFile(opts.file)
	if err != nil {
		return err
	}
	if problems := validateSeeds(seeds); len(problems) > 0 {
		return oops.Code("SEED_INVALID").
			With("file", opts.file).
			With("problems", problems).
			Errorf("%d of %d fixtures invalid; run validate-seeds for details", len(problems), len(seeds.Users))
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.timeout)
	defer cancel()

	connectOpts := store.DefaultConnectOptions()
	connectOpts.MaxRetries = cfg.Database.ConnectRetries

	cmd.Println("Connecting to database...")
	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, connectOpts)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	created, err := seedUsers(ctx, cmd, deps.StoreFactory(pool), auth.NewArgon2idHasher(), seeds.Users)
	if err != nil {
		return err
	}

	cmd.Printf("Seeding complete: %d created, %d skipped\n", created, len(seeds.Users)-created)
	return nil
}

// seedUsers creates each fixture and returns how many were new.
func seedUsers(ctx context.Context, cmd *cobra.Command, users auth.UserRepository, hasher auth.PasswordHasher, fixtures []SeedUser) (int, error) {
	created := 0
	for _, f := range fixtures {
		hash, err := hasher.Hash(f.Password)
		if err != nil {
			return created, oops.Code("SEED_FAILED").With("operation", "hash password").With("email", f.Email).Wrap(err)
		}
		user, err := auth.NewUser(f.Username, f.Email, hash, time.Now())
		if err != nil {
			return created, oops.Code("SEED_FAILED").With("operation", "build user").With("email", f.Email).Wrap(err)
		}

		if err := users.CreateUser(ctx, user); err != nil {
			if isDuplicate(err) {
				cmd.Printf("User %s already exists, skipping\n", f.Email)
				continue
			}
			return created, oops.Code("SEED_FAILED").With("operation", "create user").With("email", f.Email).Wrap(err)
		}

		if f.Verified {
			if err := users.MarkEmailVerified(ctx, user.ID); err != nil {
				return created, oops.Code("SEED_FAILED").With("operation", "mark verified").With("email", f.Email).Wrap(err)
			}
		}
		created++
		cmd.Printf("Created user %s (%s)\n", f.Username, f.Email)
	}
	return created, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, auth.ErrDuplicateUsername) || errors.Is(err, auth.ErrDuplicateEmail) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
