package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fleetmedic/fleetmedic/internal/config"
)

// Webhook posts notifications as JSON to an HTTP endpoint.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhook creates a webhook channel for the given URL.
func NewWebhook(url string, timeout time.Duration, headers map[string]string) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// payload is the wire format posted to the endpoint.
type payload struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Notify posts the notification. Non-2xx responses are errors so the router
// can log them; they are never retried here.
func (w *Webhook) Notify(ctx context.Context, title, message string, severity Severity) error {
	body, err := json.Marshal(payload{
		Title:     title,
		Message:   message,
		Severity:  severity.String(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// FromConfig builds a Router from the notify section of the config.
// With nothing configured the router has no channels and delivery is a no-op.
func FromConfig(cfg config.Notify) *Router {
	var channels []Notifier
	if cfg.Webhook.URL != "" {
		channels = append(channels, NewWebhook(cfg.Webhook.URL, cfg.Webhook.Timeout.Duration, cfg.Webhook.Headers))
	}
	if cfg.Log {
		channels = append(channels, Log{})
	}
	return NewRouter(channels...)
}
