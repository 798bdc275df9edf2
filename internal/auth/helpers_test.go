// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"context"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/memstore"
)

// plainHasher is a fast reversible hasher for flow tests.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return "plain$" + password, nil
}

func (plainHasher) Verify(password, hash string) (bool, error) {
	return hash == "plain$"+password, nil
}

func (plainHasher) NeedsUpgrade(string) bool { return false }

// outbox records every message handed to it.
type outbox struct {
	mu   sync.Mutex
	msgs []auth.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg auth.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) last(t *testing.T) auth.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs, "no email sent")
	return o.msgs[len(o.msgs)-1]
}

// lastToken returns the token at the end of the most recent emailed link.
func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()
	msg := o.last(t)
	link := msg.MergeInfo["verifyLink"]
	if link == "" {
		link = msg.MergeInfo["password_reset_link"]
	}
	require.NotEmpty(t, link, "message carries no link")
	return path.Base(link)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store  *memstore.Store
	tokens *auth.TokenManager
	svc    *auth.Service
	gate   *auth.Gate
	mail   *outbox
	clock  *clock
}

func newFixture(t *testing.T, opts ...auth.ServiceOption) *fixture {
	t.Helper()

	f := &fixture{mail: &outbox{}, clock: newClock()}
	f.store = memstore.New().WithClock(f.clock.Now)

	tokens, err := auth.NewTokenManager(f.store, auth.WithTokenClock(f.clock.Now))
	require.NoError(t, err)
	f.tokens = tokens

	notifier := auth.NewNotifier(f.mail, auth.NotifierConfig{
		PublicURL:             "https://keyward.test/",
		Company:               "Keyward",
		VerificationTemplate:  "tpl-verify",
		ResetPasswordTemplate: "tpl-reset",
	})

	opts = append([]auth.ServiceOption{auth.WithClock(f.clock.Now)}, opts...)
	svc, err := auth.NewService(f.store, tokens, plainHasher{}, notifier, auth.DefaultServiceConfig(), opts...)
	require.NoError(t, err)
	f.svc = svc
	f.gate = auth.NewGate(f.store).WithClock(f.clock.Now)
	return f
}

// registerVerified registers a user and completes email verification.
func (f *fixture) registerVerified(t *testing.T, username, email, password string) *auth.User {
	t.Helper()
	ctx := context.Background()
	user, err := f.svc.Register(ctx, auth.RegisterInput{Username: username, Email: email, Password: password})
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(ctx, f.mail.lastToken(t)))
	return user
}

func isAlnum(s string) bool {
	return strings.Trim(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789") == ""
}
