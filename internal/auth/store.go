// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

// CredentialStore is the persistence contract for all durable auth state.
// Every method is atomic; no partial writes are visible to other callers.
type CredentialStore interface {
	UserRepository
	SessionRepository
	TokenRepository
}
