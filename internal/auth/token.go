// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// TokenKind distinguishes the two email token tables.
type TokenKind string

// Token kinds.
const (
	TokenVerification  TokenKind = "email_verification"
	TokenPasswordReset TokenKind = "password_reset"
)

// Valid reports whether k is a known token kind.
func (k TokenKind) Valid() bool {
	return k == TokenVerification || k == TokenPasswordReset
}

// DefaultTokenLength is the number of characters in a minted token.
const DefaultTokenLength = 8

const (
	tokenAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	maxTokenAttempts = 3
)

// EmailToken is a single-use credential delivered by email.
type EmailToken struct {
	ID            string
	Kind          TokenKind
	UserID        uuid.UUID
	ActiveExpires time.Time
}

// NewEmailToken creates a validated EmailToken.
func NewEmailToken(kind TokenKind, id string, userID uuid.UUID, activeExpires time.Time) (*EmailToken, error) {
	if !kind.Valid() {
		return nil, oops.Code("TOKEN_INVALID_KIND").With("kind", string(kind)).Errorf("unknown token kind")
	}
	if id == "" {
		return nil, oops.Code("TOKEN_INVALID_ID").Errorf("token id cannot be empty")
	}
	if userID == uuid.Nil {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be nil")
	}
	if activeExpires.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	return &EmailToken{ID: id, Kind: kind, UserID: userID, ActiveExpires: activeExpires}, nil
}

// IsExpiredAt reports whether the token is no longer valid at t.
func (t *EmailToken) IsExpiredAt(at time.Time) bool {
	return !at.Before(t.ActiveExpires)
}

// TokenRepository persists email tokens, one table per kind.
type TokenRepository interface {
	// CreateToken stores a new token. Returns ErrTokenConflict if the id exists.
	CreateToken(ctx context.Context, token *EmailToken) error

	// ConsumeToken atomically deletes an unexpired token and returns its owner.
	// Returns ErrTokenNotFound if absent, or ErrTokenExpired if present with
	// active_expires <= now; an expired row is left in place.
	// Of two concurrent calls for the same id at most one succeeds.
	ConsumeToken(ctx context.Context, kind TokenKind, id string, now time.Time) (uuid.UUID, error)

	// DeleteExpiredTokens removes tokens of a kind with active_expires <= now.
	DeleteExpiredTokens(ctx context.Context, kind TokenKind, now time.Time) (int64, error)
}

// GenerateToken returns a uniformly random alphanumeric string of the given length.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", oops.Code("TOKEN_INVALID_LENGTH").With("length", length).Errorf("token length must be positive")
	}

	limit := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", oops.Code("TOKEN_GENERATE_FAILED").
				With("operation", "crypto/rand.Int").
				Wrap(err)
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// TokenManager mints and consumes single-use email tokens.
type TokenManager struct {
	tokens TokenRepository
	length int
	now    func() time.Time
}

// TokenManagerOption configures a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithTokenLength overrides DefaultTokenLength.
func WithTokenLength(n int) TokenManagerOption {
	return func(m *TokenManager) { m.length = n }
}

// WithTokenClock overrides the clock used for expiry decisions.
func WithTokenClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) { m.now = now }
}

// NewTokenManager creates a TokenManager backed by the given repository.
func NewTokenManager(tokens TokenRepository, opts ...TokenManagerOption) (*TokenManager, error) {
	if tokens == nil {
		return nil, oops.Code("TOKEN_MANAGER_INVALID").Errorf("token repository is required")
	}
	m := &TokenManager{tokens: tokens, length: DefaultTokenLength, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.length <= 0 {
		return nil, oops.Code("TOKEN_MANAGER_INVALID").With("length", m.length).Errorf("token length must be positive")
	}
	return m, nil
}

// Issue mints a token of the given kind for userID, valid for ttl, and persists it.
// The returned string is what the user receives in the emailed link.
func (m *TokenManager) Issue(ctx context.Context, kind TokenKind, userID uuid.UUID, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", oops.Code("TOKEN_INVALID_TTL").With("ttl", ttl.String()).Errorf("token ttl must be positive")
	}

	for attempt := 1; ; attempt++ {
		id, err := GenerateToken(m.length)
		if err != nil {
			return "", err
		}

		token, err := NewEmailToken(kind, id, userID, m.now().Add(ttl))
		if err != nil {
			return "", err
		}

		err = m.tokens.CreateToken(ctx, token)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrTokenConflict) || attempt >= maxTokenAttempts {
			return "", oops.Code("TOKEN_ISSUE_FAILED").
				With("kind", string(kind)).
				With("user_id", userID.String()).
				With("attempt", attempt).
				Wrap(err)
		}
	}
}

// ValidateAndConsume checks a token and, when valid, deletes it and returns its owner.
func (m *TokenManager) ValidateAndConsume(ctx context.Context, kind TokenKind, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, oops.Code("TOKEN_NOT_FOUND").
			With("field", "token").
			With("kind", string(kind)).
			Errorf("token not found")
	}

	userID, err := m.tokens.ConsumeToken(ctx, kind, token, m.now())
	switch {
	case err == nil:
		return userID, nil
	case errors.Is(err, ErrTokenNotFound):
		return uuid.Nil, oops.Code("TOKEN_NOT_FOUND").
			With("field", "token").
			With("kind", string(kind)).
			Errorf("token not found")
	case errors.Is(err, ErrTokenExpired):
		return uuid.Nil, oops.Code("TOKEN_EXPIRED").
			With("field", "token").
			With("kind", string(kind)).
			Errorf("token expired")
	default:
		return uuid.Nil, oops.Code("TOKEN_CONSUME_FAILED").
			With("kind", string(kind)).
			Wrap(err)
	}
}

// PruneExpired deletes expired tokens of every kind and returns the total removed.
func (m *TokenManager) PruneExpired(ctx context.Context) (int64, error) {
	now := m.now()
	var total int64
	for _, kind := range []TokenKind{TokenVerification, TokenPasswordReset} {
		n, err := m.tokens.DeleteExpiredTokens(ctx, kind, now)
		if err != nil {
			return total, oops.Code("TOKEN_PRUNE_FAILED").With("kind", string(kind)).Wrap(err)
		}
		total += n
	}
	return total, nil
}
