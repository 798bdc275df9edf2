// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package mail delivers templated account emails through a hosted template
// API, an SMTP relay, or the process log.
package mail

import (
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// Drivers accepted by New.
const (
	DriverAPI  = "api"
	DriverSMTP = "smtp"
	DriverLog  = "log"
)

// Config selects and configures a driver.
type Config struct {
	Driver string
	// Sender is the From address for every driver.
	Sender string

	APIURL     string
	APIKey     string
	APITimeout time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	// Template keys; the SMTP driver registers its built-in bodies under them.
	VerificationTemplate  string
	ResetPasswordTemplate string
}

// New returns the sender for cfg.Driver.
func New(cfg Config, logger *slog.Logger) (auth.EmailSender, error) {
	switch cfg.Driver {
	case DriverAPI:
		sender, err := NewAPISender(APIConfig{
			URL:     cfg.APIURL,
			Key:     cfg.APIKey,
			Sender:  cfg.Sender,
			Timeout: cfg.APITimeout,
		})
		if err != nil {
			return nil, err
		}
		return sender, nil
	case DriverSMTP:
		sender, err := NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Sender:   cfg.Sender,
		}, DefaultTemplates(cfg.VerificationTemplate, cfg.ResetPasswordTemplate)...)
		if err != nil {
			return nil, err
		}
		return sender, nil
	case DriverLog, "":
		return NewLogSender(logger), nil
	default:
		return nil, oops.Code("MAIL_DRIVER_INVALID").With("driver", cfg.Driver).Errorf("unknown mail driver %q", cfg.Driver)
	}
}
