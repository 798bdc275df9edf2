// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package config

import (
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/mail"
)

// MinTokenLength bounds tokens.length from below.
const MinTokenLength = 6

// Validate reports every invalid setting in a single CONFIG_INVALID error.
func (c *Config) Validate() error {
	var problems []string
	add := func(msg string) { problems = append(problems, msg) }

	if c.Database.URL == "" {
		add("database.url is required")
	}

	if u, err := url.Parse(c.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("public_url must be an absolute URL")
	}

	if c.Sessions.ShortTTL <= 0 {
		add("sessions.short_ttl must be positive")
	}
	if c.Sessions.LongTTL < c.Sessions.ShortTTL {
		add("sessions.long_ttl must not be shorter than sessions.short_ttl")
	}
	if c.Tokens.Length < MinTokenLength {
		add("tokens.length is too short")
	}
	if c.Tokens.VerificationTTL <= 0 || c.Tokens.ResetTTL <= 0 {
		add("token lifetimes must be positive")
	}

	switch c.Mail.Driver {
	case mail.DriverAPI:
		if c.Mail.API.URL == "" && c.Mail.API.TemplateURL == "" {
			add("mail.api.template_url is required for the api driver")
		}
		if c.Mail.API.Key == "" {
			add("mail.api.key is required for the api driver")
		}
	case mail.DriverSMTP:
		if c.Mail.SMTP.Host == "" {
			add("mail.smtp.host is required for the smtp driver")
		}
	case mail.DriverLog, "":
	default:
		add("mail.driver must be api, smtp or log")
	}

	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if c.HTTP.RequestTimeout <= 0 {
		add("http.request_timeout must be positive")
	}

	switch c.Log.Format {
	case "", "json", "text":
	default:
		add("log.format must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level is not a known level")
	}

	if len(problems) == 0 {
		return nil
	}
	return oops.Code("CONFIG_INVALID").
		With("problems", problems).
		Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// ServiceConfig returns the flow lifetimes.
func (c *Config) ServiceConfig() auth.ServiceConfig {
	return auth.ServiceConfig{
		ShortSessionTTL: c.Sessions.ShortTTL,
		LongSessionTTL:  c.Sessions.LongTTL,
		VerificationTTL: c.Tokens.VerificationTTL,
		ResetTTL:        c.Tokens.ResetTTL,
	}
}

// NotifierConfig returns the email content settings.
func (c *Config) NotifierConfig() auth.NotifierConfig {
	return auth.NotifierConfig{
		PublicURL:             c.PublicURL,
		Company:               c.Company,
		VerificationTemplate:  c.Mail.Templates.Verification,
		ResetPasswordTemplate: c.Mail.Templates.ResetPassword,
	}
}

// MailConfig returns the driver settings. The template endpoint wins over the
// plain API URL when both are set.
func (c *Config) MailConfig() mail.Config {
	apiURL := c.Mail.API.TemplateURL
	if apiURL == "" {
		apiURL = c.Mail.API.URL
	}
	return mail.Config{
		Driver:                c.Mail.Driver,
		Sender:                c.Mail.Sender,
		APIURL:                apiURL,
		APIKey:                c.Mail.API.Key,
		APITimeout:            c.Mail.API.Timeout,
		SMTPHost:              c.Mail.SMTP.Host,
		SMTPPort:              c.Mail.SMTP.Port,
		SMTPUsername:          c.Mail.SMTP.Username,
		SMTPPassword:          c.Mail.SMTP.Password,
		VerificationTemplate:  c.Mail.Templates.Verification,
		ResetPasswordTemplate: c.Mail.Templates.ResetPassword,
	}
}

// LoggingOptions returns logger settings for the given build.
func (c *Config) LoggingOptions(service, version string) logging.Options {
	return logging.Options{
		Service: service,
		Version: version,
		Format:  c.Log.Format,
		Level:   c.Log.Level,
	}
}
