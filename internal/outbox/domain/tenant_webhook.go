package domain

import (
	"time"

	"github.com/allisson/casevault/internal/errors"
)

// ErrTenantWebhookNotFound indicates the tenant has no webhook configured.
var ErrTenantWebhookNotFound = errors.Wrap(errors.ErrNotFound, "tenant webhook not found")

// TenantWebhook is a tenant-configured endpoint notified of ledger tamper alerts.
type TenantWebhook struct {
	TenantID  string
	URL       string
	Secret    []byte
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
