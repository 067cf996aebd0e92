// Package dto provides data transfer objects for the tenant webhook endpoints.
package dto

import (
	"encoding/base64"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/casevault/internal/outbox/domain"
	customValidation "github.com/allisson/casevault/internal/validation"
)

// MinWebhookSecretSize is the shortest decoded webhook secret accepted.
const MinWebhookSecretSize = 16

// PutTenantWebhookRequest configures the tenant's tamper alert endpoint.
type PutTenantWebhookRequest struct {
	URL     string `json:"url"`
	Secret  string `json:"secret"` // Base64-encoded signing secret
	Enabled *bool  `json:"enabled"`
}

// Validate checks if the webhook request is valid.
func (r *PutTenantWebhookRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.URL,
			validation.Required,
			customValidation.NoWhitespace,
			customValidation.WebhookURL,
		),
		validation.Field(&r.Secret,
			validation.Required,
			customValidation.Base64Key(MinWebhookSecretSize),
		),
	)
}

// ToDomain decodes the request into a TenantWebhook. Enabled defaults to true.
func (r *PutTenantWebhookRequest) ToDomain(tenantID string, now time.Time) (*domain.TenantWebhook, error) {
	secret, err := base64.StdEncoding.DecodeString(r.Secret)
	if err != nil {
		return nil, err
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &domain.TenantWebhook{
		TenantID:  tenantID,
		URL:       r.URL,
		Secret:    secret,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
