// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"net/url"
	"strings"
)

// Message is an outbound templated email.
type Message struct {
	ToAddress   string
	ToName      string
	TemplateKey string
	MergeInfo   map[string]string
}

// EmailSender delivers templated email. Implementations live in internal/mail.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierConfig holds what is needed to build the two account emails.
type NotifierConfig struct {
	PublicURL             string // base URL that links point at
	Company               string
	VerificationTemplate  string
	ResetPasswordTemplate string
}

// Notifier builds and sends verification and password reset emails.
type Notifier struct {
	sender EmailSender
	cfg    NotifierConfig
}

// NewNotifier creates a Notifier.
func NewNotifier(sender EmailSender, cfg NotifierConfig) *Notifier {
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Notifier{sender: sender, cfg: cfg}
}

// VerificationLink returns the link embedded in a verification email.
func (n *Notifier) VerificationLink(token string) string {
	return n.cfg.PublicURL + "/api/auth/verify-email/" + url.PathEscape(token)
}

// ResetPasswordLink returns the link embedded in a password reset email.
func (n *Notifier) ResetPasswordLink(token string) string {
	return n.cfg.PublicURL + "/api/auth/reset-password/" + url.PathEscape(token)
}

// SendVerification emails a verification link to the user.
func (n *Notifier) SendVerification(ctx context.Context, user *User, token string) error {
	return n.sender.Send(ctx, Message{
		ToAddress:   user.Email,
		ToName:      user.Username,
		TemplateKey: n.cfg.VerificationTemplate,
		MergeInfo: map[string]string{
			"verifyLink": n.VerificationLink(token),
			"email":      user.Email,
		},
	})
}

// SendResetPassword emails a password reset link to the user.
func (n *Notifier) SendResetPassword(ctx context.Context, user *User, token string) error {
	return n.sender.Send(ctx, Message{
		ToAddress:   user.Email,
		ToName:      user.Username,
		TemplateKey: n.cfg.ResetPasswordTemplate,
		MergeInfo: map[string]string{
			"password_reset_link": n.ResetPasswordLink(token),
			"name":                user.Username,
			"team":                n.cfg.Company,
			"product_name":        n.cfg.Company,
			"username":            user.Username,
		},
	})
}
