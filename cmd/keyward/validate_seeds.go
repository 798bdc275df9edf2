// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/auth"
)

// NewValidateSeedsCmd creates the validate-seeds subcommand.
func NewValidateSeedsCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate-seeds",
		Short: "Validate a fixtures file without touching the database",
		Long: `Checks every fixture against the registration rules for username,
email and password, and reports duplicate usernames or emails inside the file.
Does NOT require a database connection.
Exits with code 0 on success, non-zero on failure.

Useful in CI pipelines to catch fixture errors early:
  keyward validate-seeds --file fixtures.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidateSeeds(cmd, file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "fixtures file (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runValidateSeeds(cmd *cobra.Command, path string) error {
	seeds, err := loadSeedFile(path)
	if err != nil {
		return err
	}

	problems := validateSeeds(seeds)
	if len(problems) > 0 {
		for _, p := range problems {
			slog.Error("fixture validation failed", "detail", p)
			cmd.PrintErrln(p)
		}
		return oops.Code("SEED_INVALID").
			With("file", path).
			Errorf("validation failed: %d problem(s) in %d fixtures", len(problems), len(seeds.Users))
	}

	cmd.Printf("All %d fixtures valid\n", len(seeds.Users))
	return nil
}

// validateSeeds returns one line per problem, in file order.
func validateSeeds(seeds *SeedFile) []string {
	var problems []string
	usernames := make(map[string]int)
	emails := make(map[string]int)

	for i, u := range seeds.Users {
		label := fmt.Sprintf("users[%d]", i)
		for _, fe := range auth.ValidateRegistration(u.Username, u.Email, u.Password) {
			problems = append(problems, fmt.Sprintf("%s.%s: %s", label, fe.Field, fe.Message))
		}
		if first, ok := usernames[u.Username]; ok {
			problems = append(problems, fmt.Sprintf("%s.username: duplicates users[%d]", label, first))
		} else {
			usernames[u.Username] = i
		}
		if first, ok := emails[u.Email]; ok {
			problems = append(problems, fmt.Sprintf("%s.email: duplicates users[%d]", label, first))
		} else {
			emails[u.Email] = i
		}
	}
	return problems
}
