// Package http provides HTTP handlers for tenant key management.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/casevault/internal/crypto/http/dto"
	cryptoUseCase "github.com/allisson/casevault/internal/crypto/usecase"
	"github.com/allisson/casevault/internal/httputil"
)

// KeyHandler handles HTTP requests for tenant key rotation and inspection.
type KeyHandler struct {
	keyUseCase cryptoUseCase.TenantKeyUseCase
	logger     *slog.Logger
}

// NewKeyHandler creates a new key handler.
func NewKeyHandler(keyUseCase cryptoUseCase.TenantKeyUseCase, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{
		keyUseCase: keyUseCase,
		logger:     logger,
	}
}

// RotateHandler creates the next key version of a tenant and retires the current one.
// POST /v1/tenants/:tenant_id/keys/rotate
// Returns 200 OK with the old and new versions.
func (h *KeyHandler) RotateHandler(c *gin.Context) {
	tenantID, err := httputil.TenantIDParam(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	result, err := h.keyUseCase.RotateKey(c.Request.Context(), tenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRotationToResponse(result))
}

// ListHandler lists the key versions of a tenant without key material.
// GET /v1/tenants/:tenant_id/keys
func (h *KeyHandler) ListHandler(c *gin.Context) {
	tenantID, err := httputil.TenantIDParam(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	versions, err := h.keyUseCase.ListVersions(c.Request.Context(), tenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapKeyVersionsToResponse(tenantID, versions))
}
