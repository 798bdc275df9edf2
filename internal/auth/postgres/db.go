// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package postgres provides PostgreSQL implementations of auth repositories.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/keyward/keyward/internal/auth"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL auth.CredentialStore.
type Store struct {
	*UserRepository
	*SessionRepository
	*TokenRepository
}

// NewStore creates a Store whose repositories share db.
func NewStore(db DB) *Store {
	return &Store{
		UserRepository:    NewUserRepository(db),
		SessionRepository: NewSessionRepository(db),
		TokenRepository:   NewTokenRepository(db),
	}
}

// Compile-time interface check.
var _ auth.CredentialStore = (*Store)(nil)
