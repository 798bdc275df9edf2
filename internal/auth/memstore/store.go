// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package memstore provides an in-memory auth.CredentialStore for tests and
// local development.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// Store is a mutex-guarded in-memory credential store.
// Values are copied on the way in and out so callers never share state with it.
type Store struct {
	mu       sync.Mutex
	users    map[uuid.UUID]auth.User
	sessions map[uuid.UUID]auth.Session
	tokens   map[auth.TokenKind]map[string]auth.EmailToken
	now      func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]auth.User),
		sessions: make(map[uuid.UUID]auth.Session),
		tokens: map[auth.TokenKind]map[string]auth.EmailToken{
			auth.TokenVerification:  {},
			auth.TokenPasswordReset: {},
		},
		now: time.Now,
	}
}

// WithClock overrides the clock that stamps user updates.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// CreateUser stores a new user.
func (s *Store) CreateUser(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username {
			return oops.Code("USER_CREATE_FAILED").With("username", user.Username).Wrap(auth.ErrDuplicateUsername)
		}
		if u.Email == user.Email {
			return oops.Code("USER_CREATE_FAILED").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
		}
	}
	s.users[user.ID] = *user
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return &u, nil
}

// GetUserByEmail retrieves a user by exact email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	return s.updateUser(id, func(u *auth.User) { u.PasswordHash = passwordHash })
}

// MarkEmailVerified sets email_verified for a user.
func (s *Store) MarkEmailVerified(_ context.Context, id uuid.UUID) error {
	return s.updateUser(id, func(u *auth.User) { u.EmailVerified = true })
}

func (s *Store) updateUser(id uuid.UUID, fn func(*auth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	fn(&u)
	u.UpdatedAt = s.now().UTC()
	s.users[id] = u
	return nil
}

// CreateSession stores a new session.
func (s *Store) CreateSession(_ context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[session.UserID]; !ok {
		return oops.Code("SESSION_CREATE_FAILED").
			With("user_id", session.UserID.String()).
			Errorf("user does not exist")
	}
	cp := *session
	cp.Data = append([]byte(nil), session.Data...)
	s.sessions[session.ID] = cp
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(_ context.Context, id uuid.UUID) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	sess.Data = append([]byte(nil), sess.Data...)
	return &sess, nil
}

// DeleteExpiredSessions removes sessions with expiry_date <= now.
func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, sess := range s.sessions {
		if sess.IsExpiredAt(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// CreateToken stores a new token.
func (s *Store) CreateToken(_ context.Context, token *auth.EmailToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.table(token.Kind)
	if err != nil {
		return err
	}
	if _, ok := s.users[token.UserID]; !ok {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("user_id", token.UserID.String()).
			Errorf("user does not exist")
	}
	if _, ok := table[token.ID]; ok {
		return oops.Code("TOKEN_CREATE_FAILED").With("kind", string(token.Kind)).Wrap(auth.ErrTokenConflict)
	}
	table[token.ID] = *token
	return nil
}

// ConsumeToken deletes an unexpired token under the store lock and returns its owner.
func (s *Store) ConsumeToken(_ context.Context, kind auth.TokenKind, id string, now time.Time) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.table(kind)
	if err != nil {
		return uuid.Nil, err
	}
	tok, ok := table[id]
	if !ok {
		return uuid.Nil, oops.Code("TOKEN_NOT_FOUND").With("kind", string(kind)).Wrap(auth.ErrTokenNotFound)
	}
	if tok.IsExpiredAt(now) {
		return uuid.Nil, oops.Code("TOKEN_EXPIRED").With("kind", string(kind)).Wrap(auth.ErrTokenExpired)
	}
	delete(table, id)
	return tok.UserID, nil
}

// DeleteExpiredTokens removes tokens of a kind with active_expires <= now.
func (s *Store) DeleteExpiredTokens(_ context.Context, kind auth.TokenKind, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.table(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	for id, tok := range table {
		if tok.IsExpiredAt(now) {
			delete(table, id)
			n++
		}
	}
	return n, nil
}

// Tokens returns the ids of all stored tokens of a kind, for test inspection.
func (s *Store) Tokens(kind auth.TokenKind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.tokens[kind]))
	for id := range s.tokens[kind] {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) table(kind auth.TokenKind) (map[string]auth.EmailToken, error) {
	table, ok := s.tokens[kind]
	if !ok {
		return nil, oops.Code("TOKEN_INVALID_KIND").With("kind", string(kind)).Errorf("unknown token kind")
	}
	return table, nil
}

// Compile-time interface check.
var _ auth.CredentialStore = (*Store)(nil)
