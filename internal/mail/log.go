// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/keyward/keyward/internal/auth"
)

// LogSender writes messages to the log instead of delivering them. Links are
// included, so it is for development only.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs msg and never fails.
func (s *LogSender) Send(ctx context.Context, msg auth.Message) error {
	s.logger.InfoContext(ctx, "email not delivered (log driver)",
		"to", msg.ToAddress,
		"template", msg.TemplateKey,
		"merge_info", msg.MergeInfo)
	return nil
}
