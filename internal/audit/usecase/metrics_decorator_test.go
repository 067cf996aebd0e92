package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	"github.com/allisson/casevault/internal/metrics"
)

// mockBusinessMetrics is a mock implementation of metrics.BusinessMetrics for testing.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordRecords(ctx context.Context, collection, outcome string, count int) {
	m.Called(ctx, collection, outcome, count)
}

func (m *mockBusinessMetrics) RecordIntegrityViolation(ctx context.Context, kind string) {
	m.Called(ctx, kind)
}

var _ metrics.BusinessMetrics = (*mockBusinessMetrics)(nil)

func expectMetrics(m *mockBusinessMetrics, operation, status string) {
	m.On("RecordOperation", mock.Anything, "audit", operation, status).Once()
	m.On("RecordDuration", mock.Anything, "audit", operation, mock.AnythingOfType("time.Duration"), status).Once()
}

func TestLedgerMetricsDecorator(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_Append", func(t *testing.T) {
		h := newLedgerHarness(t, LedgerConfig{})
		m := &mockBusinessMetrics{}
		expectMetrics(m, "audit_append", "success")

		ledger := NewLedgerUseCaseWithMetrics(h.useCase, m)
		_, err := ledger.Append(ctx, &auditDomain.Entry{TenantID: "tenant-b", Action: auditDomain.ActionFieldAccessed})
		require.NoError(t, err)
		m.AssertExpectations(t)
	})

	t.Run("Error_VerifyChain", func(t *testing.T) {
		h := newLedgerHarness(t, LedgerConfig{})
		m := &mockBusinessMetrics{}
		expectMetrics(m, "audit_verify_chain", "error")

		ledger := NewLedgerUseCaseWithMetrics(h.useCase, m)
		_, err := ledger.VerifyChain(ctx, "", auditDomain.Range{})
		assert.ErrorIs(t, err, auditDomain.ErrInvalidTenantID)
		m.AssertExpectations(t)
	})

	t.Run("Success_OnTamperDetectedCountsViolation", func(t *testing.T) {
		h := newLedgerHarness(t, LedgerConfig{})
		entries := h.appendN(t, "tenant-b", 3)
		m := &mockBusinessMetrics{}
		expectMetrics(m, "audit_tamper_detected", "success")
		m.On("RecordIntegrityViolation", mock.Anything, string(auditDomain.DiscrepancyHashMismatch)).Once()

		ledger := NewLedgerUseCaseWithMetrics(h.useCase, m)
		state, err := ledger.OnTamperDetected(ctx, "tenant-b", entries[1].ID, auditDomain.DiscrepancyHashMismatch)
		require.NoError(t, err)
		assert.True(t, state.Flagged())
		m.AssertExpectations(t)
	})

	t.Run("Error_OnTamperDetectedUnknownEntry", func(t *testing.T) {
		h := newLedgerHarness(t, LedgerConfig{})
		m := &mockBusinessMetrics{}
		expectMetrics(m, "audit_tamper_detected", "error")

		ledger := NewLedgerUseCaseWithMetrics(h.useCase, m)
		_, err := ledger.OnTamperDetected(ctx, "tenant-b", uuid.New(), auditDomain.DiscrepancyChainBreak)
		assert.ErrorIs(t, err, auditDomain.ErrEntryNotFound)
		m.AssertNotCalled(t, "RecordIntegrityViolation", mock.Anything, mock.Anything)
	})

	t.Run("Error_PurgeExpired", func(t *testing.T) {
		h := newLedgerHarness(t, LedgerConfig{MinRetention: time.Hour})
		m := &mockBusinessMetrics{}
		expectMetrics(m, "audit_purge", "error")

		ledger := NewLedgerUseCaseWithMetrics(h.useCase, m)
		_, err := ledger.PurgeExpired(ctx, "tenant-b", time.Minute)
		assert.ErrorIs(t, err, auditDomain.ErrRetentionTooShort)
		m.AssertExpectations(t)
	})
}
