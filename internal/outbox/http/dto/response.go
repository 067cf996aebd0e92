package dto

import (
	"time"

	"github.com/allisson/casevault/internal/outbox/domain"
)

// TenantWebhookResponse describes a tenant webhook. The secret is never returned.
type TenantWebhookResponse struct {
	TenantID  string    `json:"tenant_id"`
	URL       string    `json:"url"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MapTenantWebhookToResponse converts a TenantWebhook.
func MapTenantWebhookToResponse(w *domain.TenantWebhook) TenantWebhookResponse {
	return TenantWebhookResponse{
		TenantID:  w.TenantID,
		URL:       w.URL,
		Enabled:   w.Enabled,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}
