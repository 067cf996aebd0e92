// Package service delivers outbox events to HTTP webhooks.
//
// # Signing
//
// When a secret is configured the request carries three headers:
//   - X-Casevault-Event: the outbox event type
//   - X-Casevault-Timestamp: unix seconds at signing time
//   - X-Casevault-Signature: "sha256=" + hex HMAC-SHA256 over
//     "<timestamp>.<body>"
//
// The HMAC key is derived from the secret with HKDF-SHA256. Receivers call
// DeriveSigningKey once and Verify per request, rejecting stale timestamps
// on their side.
//
// # Retries
//
// Requests go through go-retryablehttp: connection errors and 5xx responses
// are retried with exponential backoff up to RetryMax times. A 4xx response
// fails immediately.
//
// # Usage Example
//
//	sender := service.NewWebhookSender(service.WebhookSenderConfig{
//	    Timeout:      10 * time.Second,
//	    RetryMax:     3,
//	    RetryWaitMin: time.Second,
//	    RetryWaitMax: 30 * time.Second,
//	}, logger)
//
//	err := sender.Send(ctx, "https://tenant.example/hooks", "audit.tamper_alert", secret, body)
package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/crypto/hkdf"
)

const (
	// SignatureHeader carries "sha256=<hex hmac>" over "<timestamp>.<body>".
	SignatureHeader = "X-Casevault-Signature"
	// TimestampHeader carries the unix seconds the signature was computed at.
	TimestampHeader = "X-Casevault-Timestamp"
	// EventHeader carries the outbox event type.
	EventHeader = "X-Casevault-Event"

	signingInfo = "webhook-signing-v1"
)

// WebhookSenderConfig tunes webhook delivery.
type WebhookSenderConfig struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// WebhookSender posts signed JSON payloads with retries.
type WebhookSender struct {
	client *retryablehttp.Client
	now    func() time.Time
}

// DeriveSigningKey derives the HMAC key from a webhook secret with HKDF-SHA256,
// so the configured secret is never used as a MAC key directly.
func DeriveSigningKey(secret []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, []byte(signingInfo))

	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(reader, signingKey); err != nil {
		return nil, err
	}
	return signingKey, nil
}

// Sign returns the signature header value for body at timestamp.
func Sign(signingKey []byte, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body at timestamp.
func Verify(signingKey []byte, timestamp int64, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(signingKey, timestamp, body)), []byte(signature))
}

// Send posts body to url.
//
// Parameters:
//   - ctx: Context for cancellation of the request and its retries
//   - url: Destination endpoint
//   - eventType: Sent in EventHeader
//   - secret: Webhook secret; nil or empty sends the request unsigned
//   - body: JSON payload, sent as-is
//
// Returns:
//   - nil on any 2xx response
//   - An error naming the status for a non-2xx response after retries, or
//     wrapping the transport error when the endpoint was unreachable
func (w *WebhookSender) Send(ctx context.Context, url, eventType string, secret, body []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, eventType)

	if len(secret) > 0 {
		signingKey, err := DeriveSigningKey(secret)
		if err != nil {
			return fmt.Errorf("failed to derive webhook signing key: %w", err)
		}
		timestamp := w.now().Unix()
		req.Header.Set(TimestampHeader, strconv.FormatInt(timestamp, 10))
		req.Header.Set(SignatureHeader, Sign(signingKey, timestamp, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NewWebhookSender creates a WebhookSender. Retries use the client's default
// backoff and retry policy for connection errors and 5xx responses.
func NewWebhookSender(cfg WebhookSenderConfig, logger *slog.Logger) *WebhookSender {
	client := retryablehttp.NewClient()
	client.Logger = nil
	if logger != nil {
		client.Logger = logger
	}
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	// Return the last response instead of a generic "giving up" error.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &WebhookSender{client: client, now: time.Now}
}
