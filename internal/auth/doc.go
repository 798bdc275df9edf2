// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package auth provides the authentication core for Keyward.
//
// # Domain Types
//
// Domain types (User, Session, EmailToken) should be created using their
// respective constructors:
//   - NewUser - creates a User with a validated username, email and hash
//   - NewSession - creates a Session with a validated owner and expiry
//   - NewEmailToken - creates an EmailToken of a given kind and expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Components
//
//   - CredentialStore - the persistence contract (users, sessions, tokens)
//   - TokenManager - mints and consumes single-use email tokens
//   - Gate - resolves a session cookie value into an Identity
//   - Service - register, login, password reset and email verification flows
//
// Services are created with New* constructors that validate dependencies.
package auth
