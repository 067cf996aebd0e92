// Package http provides HTTP handlers for the audit ledger.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	"github.com/allisson/casevault/internal/audit/http/dto"
	auditUseCase "github.com/allisson/casevault/internal/audit/usecase"
	"github.com/allisson/casevault/internal/httputil"
)

// TenantVerifier verifies a ledger range and responds to detected tampering.
type TenantVerifier interface {
	VerifyTenant(ctx context.Context, tenantID string, rng auditDomain.Range) (*auditUseCase.TenantVerification, error)
}

// LedgerHandler handles HTTP requests for ledger verification and inspection.
type LedgerHandler struct {
	ledger   auditUseCase.LedgerUseCase
	verifier TenantVerifier
	logger   *slog.Logger
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(
	ledger auditUseCase.LedgerUseCase,
	verifier TenantVerifier,
	logger *slog.Logger,
) *LedgerHandler {
	return &LedgerHandler{
		ledger:   ledger,
		verifier: verifier,
		logger:   logger,
	}
}

// VerifyHandler walks the tenant chain over the optional from_seq/to_seq range.
// GET /v1/tenants/:tenant_id/audit/verify
// Returns 200 OK with every discrepancy found. A newly detected discrepancy
// flags the ledger and sends the tamper alert before the response is written.
func (h *LedgerHandler) VerifyHandler(c *gin.Context) {
	tenantID, err := httputil.TenantIDParam(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	fromSeq, toSeq, err := httputil.ParseSequenceRange(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	result, err := h.verifier.VerifyTenant(
		c.Request.Context(),
		tenantID,
		auditDomain.Range{FromSequence: fromSeq, ToSequence: toSeq},
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, result)
}

// StateHandler returns the tenant LedgerState.
// GET /v1/tenants/:tenant_id/audit/state
func (h *LedgerHandler) StateHandler(c *gin.Context) {
	tenantID, err := httputil.TenantIDParam(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	state, err := h.ledger.State(c.Request.Context(), tenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, state)
}

// ListEntriesHandler pages through the tenant ledger in sequence order.
// GET /v1/tenants/:tenant_id/audit/entries?from_seq=&to_seq=&limit=
func (h *LedgerHandler) ListEntriesHandler(c *gin.Context) {
	tenantID, err := httputil.TenantIDParam(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	fromSeq, toSeq, err := httputil.ParseSequenceRange(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	limit, err := httputil.ParseLimit(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	entries, err := h.ledger.List(
		c.Request.Context(),
		tenantID,
		auditDomain.Range{FromSequence: fromSeq, ToSequence: toSeq},
		limit,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEntriesToResponse(tenantID, entries, limit))
}
