package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
)

// failingLedger fails verification for one tenant.
type failingLedger struct {
	LedgerUseCase
	tenantID string
}

func (f *failingLedger) VerifyChain(
	ctx context.Context,
	tenantID string,
	rng auditDomain.Range,
) (*auditDomain.VerificationReport, error) {
	if tenantID == f.tenantID {
		return nil, errors.New("store unavailable")
	}
	return f.LedgerUseCase.VerifyChain(ctx, tenantID, rng)
}

func TestIntegritySweep_RunOnce(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Success_FlagsTamperedTenantOnce", func(t *testing.T) {
		h := newLedgerHarness(t, LedgerConfig{})
		h.appendN(t, "tenant-a", 3)
		tampered := h.appendN(t, "tenant-b", 4)
		h.appendN(t, "tenant-c", 2)
		h.entries.Tamper("tenant-b", tampered[1].ID, func(e *auditDomain.Entry) { e.ResourceID = "other" })

		sweep := NewIntegritySweep(SweepConfig{Interval: time.Hour, Concurrency: 2}, h.useCase, logger)

		result, err := sweep.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Tenants)
		assert.Equal(t, 2, result.Clean)
		assert.Equal(t, []string{"tenant-b"}, result.Flagged)

		state, err := h.useCase.State(ctx, "tenant-b")
		require.NoError(t, err)
		assert.True(t, state.Flagged())
		assert.Equal(t, uint64(2), state.FirstBadSequence)
		assert.Equal(t, auditDomain.DiscrepancyHashMismatch, state.Kind)
		assert.Len(t, h.outbox.events, 1)

		result, err = sweep.RunOnce(ctx)
		require.NoError(t, err)
		assert.Empty(t, result.Flagged)
		assert.Equal(t, []string{"tenant-b"}, result.AlreadyFlagged)
		assert.Len(t, h.outbox.events, 1)
	})

	t.Run("Success_TenantFailureIsIsolated", func(t *testing.T) {
		h := newLedgerHarness(t, LedgerConfig{})
		h.appendN(t, "tenant-a", 1)
		h.appendN(t, "tenant-b", 1)

		sweep := NewIntegritySweep(SweepConfig{Interval: time.Hour}, &failingLedger{
			LedgerUseCase: h.useCase,
			tenantID:      "tenant-a",
		}, logger)

		result, err := sweep.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"tenant-a"}, result.Failed)
		assert.Equal(t, 1, result.Clean)
	})

	t.Run("Error_Canceled", func(t *testing.T) {
		h := newLedgerHarness(t, LedgerConfig{})
		h.appendN(t, "tenant-a", 1)
		sweep := NewIntegritySweep(SweepConfig{Interval: time.Hour}, h.useCase, logger)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := sweep.RunOnce(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIntegritySweep_Start(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newLedgerHarness(t, LedgerConfig{})
	sweep := NewIntegritySweep(
		SweepConfig{Interval: 10 * time.Millisecond},
		h.useCase,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, sweep.Start(ctx), context.DeadlineExceeded)
}

func TestIntegritySweep_VerifyTenant(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Success_Clean", func(t *testing.T) {
		h := newLedgerHarness(t, LedgerConfig{})
		h.appendN(t, "tenant-a", 3)
		sweep := NewIntegritySweep(SweepConfig{}, h.useCase, logger)

		result, err := sweep.VerifyTenant(ctx, "tenant-a", auditDomain.Range{})
		require.NoError(t, err)
		assert.True(t, result.Clean())
		assert.Equal(t, 3, result.TotalVerified)
		assert.False(t, result.Flagged)
		assert.Nil(t, result.State)
	})

	t.Run("Success_FlagsOnFirstDetection", func(t *testing.T) {
		h := newLedgerHarness(t, LedgerConfig{})
		entries := h.appendN(t, "tenant-a", 3)
		h.entries.Tamper("tenant-a", entries[2].ID, func(e *auditDomain.Entry) { e.Action = "key.created" })
		sweep := NewIntegritySweep(SweepConfig{}, h.useCase, logger)

		result, err := sweep.VerifyTenant(ctx, "tenant-a", auditDomain.Range{})
		require.NoError(t, err)
		assert.False(t, result.Clean())
		assert.True(t, result.Flagged)
		require.NotNil(t, result.State)
		assert.True(t, result.State.Flagged())
		assert.Len(t, h.outbox.events, 1)

		result, err = sweep.VerifyTenant(ctx, "tenant-a", auditDomain.Range{FromSequence: 1, ToSequence: 3})
		require.NoError(t, err)
		assert.False(t, result.Flagged)
		require.NotNil(t, result.State)
		assert.Len(t, h.outbox.events, 1)
	})

	t.Run("Error_InvalidRange", func(t *testing.T) {
		h := newLedgerHarness(t, LedgerConfig{})
		sweep := NewIntegritySweep(SweepConfig{}, h.useCase, logger)

		_, err := sweep.VerifyTenant(ctx, "tenant-a", auditDomain.Range{FromSequence: 5, ToSequence: 2})
		assert.ErrorIs(t, err, auditDomain.ErrInvalidRange)
	})
}
