// Package notify delivers patient notifications through a configurable
// webhook (WhatsApp/SMS gateway).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medpratica/agenda-service/pkg/logging"
)

// Sender dispatches a message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// WebhookSender posts messages to a configured gateway webhook with a bearer
// token. When no URL is configured it runs in mock mode: messages are logged
// and reported as sent. That soft behavior is intentional so environments
// without a gateway still exercise the full reminder flow.
type WebhookSender struct {
	url    string
	token  string
	client *http.Client
	logger *logging.Logger
}

// NewWebhookSender creates a webhook sender. timeout bounds each dispatch.
func NewWebhookSender(url, token string, timeout time.Duration, logger *logging.Logger) *WebhookSender {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type webhookPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Send posts the message to the gateway.
func (s *WebhookSender) Send(ctx context.Context, phone, message string) error {
	if s.url == "" {
		s.logger.Info("notify: webhook not configured, mock send",
			"phone", phone, "message_len", len(message))
		return nil
	}

	body, err := json.Marshal(webhookPayload{Phone: phone, Message: message})
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("notify: webhook returned %d: %s", resp.StatusCode, snippet)
	}

	s.logger.Info("notify: message sent", "phone", phone)
	return nil
}

// StubSender records sends for tests.
type StubSender struct {
	Sent []StubMessage
	Err  error
}

// StubMessage is one recorded dispatch.
type StubMessage struct {
	Phone   string
	Message string
}

// Send records the message, or fails with the configured error.
func (s *StubSender) Send(_ context.Context, phone, message string) error {
	if s.Err != nil {
		return s.Err
	}
	s.Sent = append(s.Sent, StubMessage{Phone: phone, Message: message})
	return nil
}

// Ensure interface compliance
var _ Sender = (*WebhookSender)(nil)
var _ Sender = (*StubSender)(nil)
