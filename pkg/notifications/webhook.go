/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"
	"time"

	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/models"
)

const (
	defaultWebhookTimeout    = 10 * time.Second
	defaultWebhookRetries    = 3
	defaultWebhookRetryDelay = 5 * time.Second
	signatureHeader          = "X-Signature"
)

const defaultWebhookTemplate = `{
  "id": {{.ID}},
  "client_id": {{json .ClientID}},
  "type": {{json .Type}},
  "title": {{json .Title}},
  "message": {{json .Message}},
  "recipients": {{json .Recipients}},
  "data": {{json .Data}},
  "created_at": {{json .CreatedAt}}
}`

// WebhookChannel posts notifications to an HTTP endpoint.
type WebhookChannel struct {
	name       string
	url        string
	secret     string
	headers    []config.Header
	retries    int
	retryDelay time.Duration
	template   *template.Template
	client     *http.Client
}

type webhookPayload struct {
	*models.Notification
	Recipients []string
}

// NewWebhookChannel builds a channel from a webhook configuration.
func NewWebhookChannel(cfg *config.WebhookConfig, client *http.Client) (*WebhookChannel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: webhook %q has no url", ErrConfigurationError, cfg.Name)
	}

	name := cfg.Name
	if name == "" {
		name = "webhook"
	}

	text := cfg.Template
	if text == "" {
		text = defaultWebhookTemplate
	}

	tmpl, err := template.New(name).Funcs(template.FuncMap{
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)

			return string(b), err
		},
	}).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: webhook %q template: %w", ErrConfigurationError, name, err)
	}

	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultWebhookRetries
	}

	return &WebhookChannel{
		name:       name,
		url:        cfg.URL,
		secret:     cfg.Secret,
		headers:    cfg.Headers,
		retries:    retries,
		retryDelay: defaultWebhookRetryDelay,
		template:   tmpl,
		client:     client,
	}, nil
}

func (w *WebhookChannel) Name() string {
	return w.name
}

// Send renders the payload and posts it, retrying on transport errors and
// non-2xx responses.
func (w *WebhookChannel) Send(ctx context.Context, n *models.Notification, recipients []string) error {
	var buf bytes.Buffer

	if err := w.template.Execute(&buf, webhookPayload{Notification: n, Recipients: recipients}); err != nil {
		return fmt.Errorf("failed to render webhook payload: %w", err)
	}

	payload := buf.Bytes()

	var lastErr error

	for attempt := 0; attempt < w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = w.post(ctx, payload); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("webhook %s failed after %d attempts: %w", w.name, w.retries, lastErr)
}

func (w *WebhookChannel) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for _, h := range w.headers {
		req.Header.Set(h.Key, h.Value)
	}

	if w.secret != "" {
		req.Header.Set(signatureHeader, w.signPayload(payload))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", ErrWebhookStatus, resp.StatusCode)
	}

	return nil
}

func (w *WebhookChannel) signPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(w.secret))
	mac.Write(payload)

	return hex.EncodeToString(mac.Sum(nil))
}
