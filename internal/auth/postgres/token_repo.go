// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// TokenRepository implements auth.TokenRepository using one table per token kind.
type TokenRepository struct {
	db DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// tokenTable maps a kind to its table. Only these fixed names reach SQL text.
func tokenTable(kind auth.TokenKind) (string, error) {
	switch kind {
	case auth.TokenVerification:
		return "email_verification_tokens", nil
	case auth.TokenPasswordReset:
		return "password_reset_tokens", nil
	default:
		return "", oops.Code("TOKEN_INVALID_KIND").With("kind", string(kind)).Errorf("unknown token kind")
	}
}

// CreateToken stores a new token.
func (r *TokenRepository) CreateToken(ctx context.Context, token *auth.EmailToken) error {
	table, err := tokenTable(token.Kind)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO `+table+` (id, user_id, active_expires)
		VALUES ($1, $2, $3)
	`, token.ID, token.UserID.String(), token.ActiveExpires)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("TOKEN_CREATE_FAILED").With("kind", string(token.Kind)).Wrap(auth.ErrTokenConflict)
		}
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert token").
			With("kind", string(token.Kind)).
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// ConsumeToken deletes an unexpired token in a single statement and returns its owner.
// Row locking on the DELETE makes concurrent consumers of the same id serialize;
// the loser sees no row.
func (r *TokenRepository) ConsumeToken(ctx context.Context, kind auth.TokenKind, id string, now time.Time) (uuid.UUID, error) {
	table, err := tokenTable(kind)
	if err != nil {
		return uuid.Nil, err
	}

	var userIDStr string
	err = r.db.QueryRow(ctx, `
		DELETE FROM `+table+`
		WHERE id = $1 AND active_expires > $2
		RETURNING user_id
	`, id, now).Scan(&userIDStr)
	if err == nil {
		userID, parseErr := uuid.Parse(userIDStr)
		if parseErr != nil {
			return uuid.Nil, oops.Code("TOKEN_INVALID_USER_ID").With("user_id", userIDStr).Wrap(parseErr)
		}
		return userID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, oops.Code("TOKEN_CONSUME_FAILED").
			With("operation", "delete token").
			With("kind", string(kind)).
			Wrap(err)
	}

	var exists bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return uuid.Nil, oops.Code("TOKEN_CONSUME_FAILED").
			With("operation", "check expired token").
			With("kind", string(kind)).
			Wrap(err)
	}
	if exists {
		return uuid.Nil, oops.Code("TOKEN_EXPIRED").With("kind", string(kind)).Wrap(auth.ErrTokenExpired)
	}
	return uuid.Nil, oops.Code("TOKEN_NOT_FOUND").With("kind", string(kind)).Wrap(auth.ErrTokenNotFound)
}

// DeleteExpiredTokens removes tokens with active_expires <= now and returns the count.
func (r *TokenRepository) DeleteExpiredTokens(ctx context.Context, kind auth.TokenKind, now time.Time) (int64, error) {
	table, err := tokenTable(kind)
	if err != nil {
		return 0, err
	}

	result, err := r.db.Exec(ctx, `DELETE FROM `+table+` WHERE active_expires <= $1`, now)
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired tokens").
			With("kind", string(kind)).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenRepository)(nil)
