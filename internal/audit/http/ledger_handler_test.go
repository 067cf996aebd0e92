package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	"github.com/allisson/casevault/internal/audit/http/dto"
	auditRepository "github.com/allisson/casevault/internal/audit/repository"
	auditService "github.com/allisson/casevault/internal/audit/service"
	auditUseCase "github.com/allisson/casevault/internal/audit/usecase"
	"github.com/allisson/casevault/internal/database"
	outboxRepository "github.com/allisson/casevault/internal/outbox/repository"
)

type ledgerFixture struct {
	handler *LedgerHandler
	ledger  auditUseCase.LedgerUseCase
	entries *auditRepository.MemoryEntryRepository
	outbox  *outboxRepository.MemoryOutboxEventRepository
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher, err := auditService.NewHasher(auditService.SHA256)
	require.NoError(t, err)
	archiver, err := auditService.OpenBlobArchiver(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = archiver.Close() })

	f := &ledgerFixture{
		entries: auditRepository.NewMemoryEntryRepository(),
		outbox:  outboxRepository.NewMemoryOutboxEventRepository(),
	}
	f.ledger = auditUseCase.NewLedgerUseCase(
		database.NewLocalTxManager(),
		f.entries,
		auditRepository.NewMemoryStateRepository(),
		hasher,
		auditService.NewOutboxNotifier(f.outbox),
		archiver,
		logger,
		auditUseCase.LedgerConfig{},
	)
	sweep := auditUseCase.NewIntegritySweep(auditUseCase.SweepConfig{}, f.ledger, logger)
	f.handler = NewLedgerHandler(f.ledger, sweep, logger)
	return f
}

func (f *ledgerFixture) appendN(t *testing.T, tenantID string, n int) []*auditDomain.Entry {
	t.Helper()
	var out []*auditDomain.Entry
	for i := range n {
		e, err := f.ledger.Append(context.Background(), &auditDomain.Entry{
			TenantID:     tenantID,
			Action:       auditDomain.ActionFieldAccessed,
			ActorID:      "alice",
			ResourceType: "case",
			ResourceID:   "case-" + strconv.Itoa(i),
		})
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func createTestContext(target, tenantID string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	c.Params = gin.Params{{Key: "tenant_id", Value: tenantID}}
	return c, w
}

type verifyResponse struct {
	TenantID      string                    `json:"tenant_id"`
	TotalVerified int                       `json:"total_verified"`
	Discrepancies []auditDomain.Discrepancy `json:"discrepancies"`
	Flagged       bool                      `json:"flagged"`
	State         *auditDomain.LedgerState  `json:"state"`
}

func TestLedgerHandler_VerifyHandler(t *testing.T) {
	t.Run("Success_Clean", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.appendN(t, "tenant-a", 5)

		c, w := createTestContext("/v1/tenants/tenant-a/audit/verify?from_seq=2&to_seq=4", "tenant-a")
		f.handler.VerifyHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response verifyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 3, response.TotalVerified)
		assert.Empty(t, response.Discrepancies)
		assert.False(t, response.Flagged)
	})

	t.Run("Success_TamperFlagsLedger", func(t *testing.T) {
		f := newLedgerFixture(t)
		entries := f.appendN(t, "tenant-a", 3)
		f.entries.Tamper("tenant-a", entries[1].ID, func(e *auditDomain.Entry) { e.ActorID = "mallory" })

		c, w := createTestContext("/v1/tenants/tenant-a/audit/verify", "tenant-a")
		f.handler.VerifyHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response verifyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.NotEmpty(t, response.Discrepancies)
		assert.Equal(t, uint64(2), response.Discrepancies[0].Sequence)
		assert.Equal(t, auditDomain.DiscrepancyHashMismatch, response.Discrepancies[0].Kind)
		assert.True(t, response.Flagged)
		require.NotNil(t, response.State)
		assert.Equal(t, auditDomain.LedgerFlagged, response.State.Status)
		assert.Len(t, f.outbox.List(), 1)
	})

	t.Run("Error_InvalidRange", func(t *testing.T) {
		f := newLedgerFixture(t)

		c, w := createTestContext("/v1/tenants/tenant-a/audit/verify?from_seq=9&to_seq=3", "tenant-a")
		f.handler.VerifyHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Error_InvalidTenant", func(t *testing.T) {
		f := newLedgerFixture(t)

		c, w := createTestContext("/v1/tenants/x/audit/verify", "")
		f.handler.VerifyHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestLedgerHandler_StateHandler(t *testing.T) {
	f := newLedgerFixture(t)
	f.appendN(t, "tenant-a", 1)

	c, w := createTestContext("/v1/tenants/tenant-a/audit/state", "tenant-a")
	f.handler.StateHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var state auditDomain.LedgerState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, "tenant-a", state.TenantID)
	assert.Equal(t, auditDomain.LedgerClean, state.Status)
}

func TestLedgerHandler_ListEntriesHandler(t *testing.T) {
	t.Run("Success_Paged", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.appendN(t, "tenant-a", 5)

		c, w := createTestContext("/v1/tenants/tenant-a/audit/entries?limit=2", "tenant-a")
		f.handler.ListEntriesHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.ListEntriesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Len(t, response.Entries, 2)
		assert.Equal(t, uint64(1), response.Entries[0].Sequence)
		assert.Equal(t, uint64(3), response.NextFromSeq)

		c, w = createTestContext("/v1/tenants/tenant-a/audit/entries?from_seq=3&limit=10", "tenant-a")
		f.handler.ListEntriesHandler(c)

		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Len(t, response.Entries, 3)
		assert.Zero(t, response.NextFromSeq)
	})

	t.Run("Error_InvalidLimit", func(t *testing.T) {
		f := newLedgerFixture(t)

		c, w := createTestContext("/v1/tenants/tenant-a/audit/entries?limit=0", "tenant-a")
		f.handler.ListEntriesHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
