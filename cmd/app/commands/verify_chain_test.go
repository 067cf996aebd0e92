package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	auditUseCase "github.com/allisson/casevault/internal/audit/usecase"
)

func TestRunVerifyChain(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	clean := &auditUseCase.TenantVerification{
		VerificationReport: &auditDomain.VerificationReport{TenantID: "tenant-a", TotalVerified: 5},
	}

	t.Run("clean-text", func(t *testing.T) {
		verifier := &mockTenantVerifier{}
		verifier.On("VerifyTenant", ctx, "tenant-a", auditDomain.Range{}).Return(clean, nil)

		var out bytes.Buffer
		err := RunVerifyChain(ctx, verifier, logger, &out, "tenant-a", 0, 0, "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "Chain intact.")
		verifier.AssertExpectations(t)
	})

	t.Run("clean-json-with-range", func(t *testing.T) {
		verifier := &mockTenantVerifier{}
		verifier.On("VerifyTenant", ctx, "tenant-a", auditDomain.Range{FromSequence: 2, ToSequence: 4}).
			Return(clean, nil)

		var out bytes.Buffer
		err := RunVerifyChain(ctx, verifier, logger, &out, "tenant-a", 2, 4, "json")
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		require.Equal(t, float64(5), decoded["total_verified"])
		require.Equal(t, false, decoded["flagged"])
		verifier.AssertExpectations(t)
	})

	t.Run("tampered", func(t *testing.T) {
		tampered := &auditUseCase.TenantVerification{
			VerificationReport: &auditDomain.VerificationReport{
				TenantID:      "tenant-a",
				TotalVerified: 5,
				Discrepancies: []auditDomain.Discrepancy{
					{EntryID: uuid.New(), Sequence: 3, Kind: auditDomain.DiscrepancyChainBreak},
				},
			},
			Flagged: true,
		}
		verifier := &mockTenantVerifier{}
		verifier.On("VerifyTenant", ctx, "tenant-a", auditDomain.Range{}).Return(tampered, nil)

		var out bytes.Buffer
		err := RunVerifyChain(ctx, verifier, logger, &out, "tenant-a", 0, 0, "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "integrity check failed")
		require.Contains(t, out.String(), "seq 3")
		require.Contains(t, out.String(), "tamper alert enqueued")
	})

	t.Run("verifier-error", func(t *testing.T) {
		verifier := &mockTenantVerifier{}
		verifier.On("VerifyTenant", ctx, "tenant-a", auditDomain.Range{}).Return(nil, errors.New("db down"))

		var out bytes.Buffer
		err := RunVerifyChain(ctx, verifier, logger, &out, "tenant-a", 0, 0, "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "db down")
	})

	t.Run("inverted-range", func(t *testing.T) {
		err := RunVerifyChain(ctx, nil, logger, nil, "tenant-a", 9, 3, "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "from-seq")
	})
}
