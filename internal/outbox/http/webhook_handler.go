// Package http provides HTTP handlers for tenant tamper alert webhooks.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/casevault/internal/httputil"
	"github.com/allisson/casevault/internal/outbox/domain"
	"github.com/allisson/casevault/internal/outbox/http/dto"
	customValidation "github.com/allisson/casevault/internal/validation"
)

// TenantWebhookRepository reads and writes tenant webhooks.
type TenantWebhookRepository interface {
	Get(ctx context.Context, tenantID string) (*domain.TenantWebhook, error)
	Upsert(ctx context.Context, webhook *domain.TenantWebhook) error
}

// WebhookHandler manages the webhook each tenant receives tamper alerts on.
type WebhookHandler struct {
	webhooks TenantWebhookRepository
	logger   *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(webhooks TenantWebhookRepository, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhooks: webhooks,
		logger:   logger,
	}
}

// PutHandler creates or replaces the tenant webhook.
// PUT /v1/tenants/:tenant_id/webhook
func (h *WebhookHandler) PutHandler(c *gin.Context) {
	tenantID, err := httputil.TenantIDParam(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	var req dto.PutTenantWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	webhook, err := req.ToDomain(tenantID, time.Now().UTC())
	if err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	if err := h.webhooks.Upsert(c.Request.Context(), webhook); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	stored, err := h.webhooks.Get(c.Request.Context(), tenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapTenantWebhookToResponse(stored))
}

// GetHandler returns the tenant webhook without its secret.
// GET /v1/tenants/:tenant_id/webhook
func (h *WebhookHandler) GetHandler(c *gin.Context) {
	tenantID, err := httputil.TenantIDParam(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	webhook, err := h.webhooks.Get(c.Request.Context(), tenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapTenantWebhookToResponse(webhook))
}
