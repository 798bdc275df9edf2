// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package mail

import (
	"context"
	"sort"
	"strings"
	"text/template"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"

	"github.com/keyward/keyward/internal/auth"
)

// Template renders one template key into a plain text email.
type Template struct {
	Key     string
	Subject string
	Body    string
}

const verificationBody = `Hello {{.email}},

Confirm your email address by opening the link below:

{{.verifyLink}}

If you did not create an account you can ignore this message.
`

const resetPasswordBody = `Hello {{.username}},

A password reset was requested for your {{.product_name}} account.
Choose a new password here:

{{.password_reset_link}}

If you did not request this, no action is needed.

The {{.team}} team
`

// DefaultTemplates returns the built-in bodies registered under the
// configured verification and reset template keys.
func DefaultTemplates(verificationKey, resetKey string) []Template {
	return []Template{
		{Key: verificationKey, Subject: "Verify your email address", Body: verificationBody},
		{Key: resetKey, Subject: "Reset your password", Body: resetPasswordBody},
	}
}

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// dialer is satisfied by *gomail.Dialer.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type compiledTemplate struct {
	subject string
	body    *template.Template
}

// SMTPSender renders messages locally and relays them over SMTP.
type SMTPSender struct {
	sender    string
	dialer    dialer
	templates map[string]compiledTemplate
}

// NewSMTPSender creates an SMTPSender and parses templates.
func NewSMTPSender(cfg SMTPConfig, templates ...Template) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("driver", DriverSMTP).Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("driver", DriverSMTP).With("port", cfg.Port).Errorf("smtp port must be positive")
	}
	return newSMTPSender(cfg.Sender, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), templates)
}

func newSMTPSender(sender string, d dialer, templates []Template) (*SMTPSender, error) {
	if sender == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("driver", DriverSMTP).Errorf("sender address is required")
	}
	s := &SMTPSender{sender: sender, dialer: d, templates: make(map[string]compiledTemplate, len(templates))}
	for _, t := range templates {
		if t.Key == "" {
			continue
		}
		body, err := template.New(t.Key).Option("missingkey=zero").Parse(t.Body)
		if err != nil {
			return nil, oops.Code("MAIL_TEMPLATE_INVALID").With("template", t.Key).Wrap(err)
		}
		s.templates[t.Key] = compiledTemplate{subject: t.Subject, body: body}
	}
	return s, nil
}

// Send renders msg and relays it. Unknown template keys fall back to a
// listing of the merge fields.
func (s *SMTPSender) Send(ctx context.Context, msg auth.Message) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("template", msg.TemplateKey).Wrap(err)
	}

	subject, body, err := s.render(msg)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.sender, "noreply"))
	m.SetHeader("To", m.FormatAddress(msg.ToAddress, msg.ToName))
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("driver", DriverSMTP).
			With("template", msg.TemplateKey).
			Wrap(err)
	}
	return nil
}

func (s *SMTPSender) render(msg auth.Message) (subject, body string, err error) {
	tmpl, ok := s.templates[msg.TemplateKey]
	if !ok {
		return msg.TemplateKey, fallbackBody(msg.MergeInfo), nil
	}
	var b strings.Builder
	if err := tmpl.body.Execute(&b, msg.MergeInfo); err != nil {
		return "", "", oops.Code("MAIL_RENDER_FAILED").With("template", msg.TemplateKey).Wrap(err)
	}
	return tmpl.subject, b.String(), nil
}

func fallbackBody(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(fields[k])
		b.WriteString("\n")
	}
	return b.String()
}
