// Package http provides HTTP handlers for re-encryption migrations.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/casevault/internal/httputil"
	"github.com/allisson/casevault/internal/migration/http/dto"
	migrationUseCase "github.com/allisson/casevault/internal/migration/usecase"
	customValidation "github.com/allisson/casevault/internal/validation"
)

// MigrationHandler runs re-encryption migrations on request.
//
// Runs are synchronous and bounded by the request context. A run cut short
// by a disconnect resumes from its checkpoints on the next request.
type MigrationHandler struct {
	migrations migrationUseCase.MigrationUseCase
	logger     *slog.Logger
}

// NewMigrationHandler creates a new migration handler.
func NewMigrationHandler(migrations migrationUseCase.MigrationUseCase, logger *slog.Logger) *MigrationHandler {
	return &MigrationHandler{
		migrations: migrations,
		logger:     logger,
	}
}

// RunHandler re-encrypts every protected field of the tenant to new_version.
// POST /v1/tenants/:tenant_id/migrations
// Returns 200 OK with per-collection results, including per-record failures.
func (h *MigrationHandler) RunHandler(c *gin.Context) {
	tenantID, err := httputil.TenantIDParam(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	var req dto.RunMigrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	result, err := h.migrations.Run(c.Request.Context(), tenantID, req.OldVersion, req.NewVersion)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, result)
}

// InitialEncryptionHandler encrypts legacy plaintext fields under the active version.
// POST /v1/tenants/:tenant_id/migrations/initial
func (h *MigrationHandler) InitialEncryptionHandler(c *gin.Context) {
	tenantID, err := httputil.TenantIDParam(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	result, err := h.migrations.RunInitialEncryption(c.Request.Context(), tenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, result)
}
