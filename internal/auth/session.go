// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// SessionCookieName is the cookie carrying the session id.
const SessionCookieName = "session_id"

// DefaultSessionData is stored with every new session. The core never reads it.
var DefaultSessionData = json.RawMessage(`{"settings":"DUMMY"}`)

// Session is a server-side login record. Its ID is the bearer credential.
type Session struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Data       json.RawMessage
	ExpiryDate time.Time
}

// NewSession creates a validated Session with a fresh random ID.
// A nil data payload is replaced with DefaultSessionData.
func NewSession(userID uuid.UUID, data json.RawMessage, expiryDate time.Time) (*Session, error) {
	if userID == uuid.Nil {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be nil")
	}
	if expiryDate.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	if data == nil {
		data = DefaultSessionData
	}
	if !json.Valid(data) {
		return nil, oops.Code("SESSION_INVALID_DATA").Errorf("session data must be valid JSON")
	}

	return &Session{
		ID:         uuid.New(),
		UserID:     userID,
		Data:       data,
		ExpiryDate: expiryDate,
	}, nil
}

// IsExpiredAt reports whether the session is no longer valid at t.
// A session whose expiry equals t is expired.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiryDate)
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// CreateSession stores a new session.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)

	// DeleteExpiredSessions removes sessions with expiry_date <= now and returns the count.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
