// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

const defaultAPITimeout = 10 * time.Second

// APIConfig configures an APISender.
type APIConfig struct {
	URL     string
	Key     string
	Sender  string
	Timeout time.Duration
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// APISender posts templated messages to a transactional email API.
type APISender struct {
	url    string
	key    string
	sender string
	client *http.Client
}

// NewAPISender creates an APISender.
func NewAPISender(cfg APIConfig) (*APISender, error) {
	if cfg.URL == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("driver", DriverAPI).Errorf("api url is required")
	}
	if cfg.Key == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("driver", DriverAPI).Errorf("api key is required")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultAPITimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &APISender{url: cfg.URL, key: cfg.Key, sender: cfg.Sender, client: client}, nil
}

type apiAddress struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type apiRecipient struct {
	EmailAddress apiAddress `json:"email_address"`
}

type apiRequest struct {
	TemplateKey string            `json:"template_key"`
	From        apiAddress        `json:"from"`
	To          []apiRecipient    `json:"to"`
	MergeInfo   map[string]string `json:"merge_info"`
}

// Send posts msg. Any non-2xx response is a MAIL_SEND_FAILED error.
func (s *APISender) Send(ctx context.Context, msg auth.Message) error {
	payload, err := json.Marshal(apiRequest{
		TemplateKey: msg.TemplateKey,
		From:        apiAddress{Address: s.sender, Name: "noreply"},
		To:          []apiRecipient{{EmailAddress: apiAddress{Address: msg.ToAddress, Name: msg.ToName}}},
		MergeInfo:   msg.MergeInfo,
	})
	if err != nil {
		return oops.Code("MAIL_ENCODE_FAILED").With("template", msg.TemplateKey).Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return oops.Code("MAIL_REQUEST_FAILED").With("operation", "build request").Wrap(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return oops.Code("MAIL_REQUEST_FAILED").
			With("operation", "post message").
			With("template", msg.TemplateKey).
			Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return oops.Code("MAIL_SEND_FAILED").
			With("status", resp.StatusCode).
			With("template", msg.TemplateKey).
			With("response", string(snippet)).
			Errorf("email service returned %d", resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
