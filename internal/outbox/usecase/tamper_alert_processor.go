package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	"github.com/allisson/casevault/internal/outbox/domain"
)

// WebhookSender posts a JSON body to a URL, signing it when secret is set.
type WebhookSender interface {
	Send(ctx context.Context, url, eventType string, secret, body []byte) error
}

// TenantWebhookRepository looks up tenant-configured webhooks.
type TenantWebhookRepository interface {
	// Get returns ErrTenantWebhookNotFound when the tenant has none.
	Get(ctx context.Context, tenantID string) (*domain.TenantWebhook, error)
}

// AdminAlertConfig is the operator endpoint receiving every tamper alert.
type AdminAlertConfig struct {
	URL    string
	Secret []byte
}

// TamperAlertProcessor delivers tamper alerts to the admin endpoint and the
// tenant's webhook. Delivery is at-least-once: a failure on either side fails
// the event and both are retried.
type TamperAlertProcessor struct {
	admin    AdminAlertConfig
	webhooks TenantWebhookRepository
	sender   WebhookSender
	logger   *slog.Logger
}

// NewTamperAlertProcessor creates a TamperAlertProcessor.
func NewTamperAlertProcessor(
	admin AdminAlertConfig,
	webhooks TenantWebhookRepository,
	sender WebhookSender,
	logger *slog.Logger,
) *TamperAlertProcessor {
	return &TamperAlertProcessor{
		admin:    admin,
		webhooks: webhooks,
		sender:   sender,
		logger:   logger,
	}
}

// Process implements EventProcessor for EventTypeTamperAlert.
//
// The payload is the JSON of an auditDomain.TamperAlert. It is posted
// unchanged to the admin endpoint when one is configured, and to the
// tenant's webhook when the tenant has an enabled one. A tenant without a
// webhook is not an error.
//
// Returns:
//   - An error if the payload is not a tamper alert
//   - The joined errors of every failed delivery; the whole event is then
//     retried, so an endpoint that already succeeded may receive it again
func (p *TamperAlertProcessor) Process(ctx context.Context, event *domain.OutboxEvent) error {
	var alert auditDomain.TamperAlert
	if err := json.Unmarshal([]byte(event.Payload), &alert); err != nil {
		return fmt.Errorf("invalid tamper alert payload: %w", err)
	}

	p.logger.Error("delivering audit ledger tamper alert",
		slog.String("tenant_id", alert.TenantID),
		slog.String("entry_id", alert.EntryID.String()),
		slog.Uint64("sequence", alert.Sequence),
		slog.String("kind", string(alert.Kind)),
		slog.Int64("locked_entries", alert.LockedEntries),
	)

	body := []byte(event.Payload)
	var errs []error

	if p.admin.URL != "" {
		if err := p.sender.Send(ctx, p.admin.URL, event.EventType, p.admin.Secret, body); err != nil {
			errs = append(errs, fmt.Errorf("admin alert: %w", err))
		}
	}

	webhook, err := p.webhooks.Get(ctx, alert.TenantID)
	switch {
	case errors.Is(err, domain.ErrTenantWebhookNotFound):
	case err != nil:
		errs = append(errs, fmt.Errorf("tenant webhook lookup: %w", err))
	case webhook.Enabled:
		if err := p.sender.Send(ctx, webhook.URL, event.EventType, webhook.Secret, body); err != nil {
			errs = append(errs, fmt.Errorf("tenant webhook: %w", err))
		}
	}

	return errors.Join(errs...)
}
