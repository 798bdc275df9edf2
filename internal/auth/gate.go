// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the Identity stored by the Gate, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Gate decides whether a session cookie value identifies an active session.
type Gate struct {
	sessions SessionRepository
	now      func() time.Time
}

// NewGate creates a Gate that looks sessions up in the given repository.
func NewGate(sessions SessionRepository) *Gate {
	return &Gate{sessions: sessions, now: time.Now}
}

// WithClock returns a copy of g using now for expiry decisions.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	return &Gate{sessions: g.sessions, now: now}
}

// Authenticate resolves a raw session_id cookie value. present must be false
// when the request carried no cookie. Exactly one repository lookup is made
// for a well-formed id.
func (g *Gate) Authenticate(ctx context.Context, raw string, present bool) (Identity, error) {
	if !present || raw == "" {
		return Identity{}, oops.Code("SESSION_COOKIE_MISSING").Errorf("session cookie not present")
	}

	sessionID, err := uuid.Parse(raw)
	if err != nil {
		return Identity{}, oops.Code("SESSION_ID_INVALID").Wrap(err)
	}

	session, err := g.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, oops.Code("SESSION_NOT_FOUND").
				With("session_id", sessionID.String()).
				Errorf("session does not exist")
		}
		return Identity{}, oops.Code("SESSION_LOOKUP_FAILED").
			With("session_id", sessionID.String()).
			Wrap(err)
	}

	if session.IsExpiredAt(g.now()) {
		return Identity{}, oops.Code("SESSION_EXPIRED").
			With("session_id", sessionID.String()).
			With("expiry_date", session.ExpiryDate).
			Errorf("session has expired")
	}

	return Identity{UserID: session.UserID, SessionID: session.ID}, nil
}
