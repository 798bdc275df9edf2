// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// User represents a registered account.
type User struct {
	ID            uuid.UUID
	Username      string
	Email         string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewUser creates a validated, unverified User stamped with now.
// The email is stored exactly as given.
func NewUser(username, email, passwordHash string, now time.Time) (*User, error) {
	if username == "" {
		return nil, oops.Code("USER_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now = now.UTC()
	return &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// PublicUser is the client-facing view of a User.
type PublicUser struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Public returns the view of the user that is safe to send to clients.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// UserRepository manages user persistence.
type UserRepository interface {
	// CreateUser stores a new user.
	// Returns ErrDuplicateUsername or ErrDuplicateEmail on uniqueness violations.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetUserByEmail retrieves a user by exact email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePassword replaces the password hash of a user.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	// MarkEmailVerified sets email_verified for a user.
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
}
