package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	auditUseCase "github.com/allisson/casevault/internal/audit/usecase"
)

// TenantVerifier verifies a tenant chain and triggers the tamper response.
type TenantVerifier interface {
	VerifyTenant(ctx context.Context, tenantID string, rng auditDomain.Range) (*auditUseCase.TenantVerification, error)
}

// RunVerifyChain walks a tenant's audit chain over [fromSeq, toSeq] (zero means
// unbounded). A newly detected discrepancy flags the ledger and alerts. Returns
// an error when any discrepancy is found so scripts can rely on the exit code.
//
// Requirements: Database must be migrated and accessible; KMS is not needed.
func RunVerifyChain(
	ctx context.Context,
	verifier TenantVerifier,
	logger *slog.Logger,
	writer io.Writer,
	tenantID string,
	fromSeq, toSeq uint64,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if toSeq > 0 && fromSeq > toSeq {
		return fmt.Errorf("from-seq must not be greater than to-seq")
	}

	logger.Info("verifying audit chain",
		slog.String("tenant_id", tenantID),
		slog.Uint64("from_seq", fromSeq),
		slog.Uint64("to_seq", toSeq),
	)

	result, err := verifier.VerifyTenant(ctx, tenantID, auditDomain.Range{FromSequence: fromSeq, ToSequence: toSeq})
	if err != nil {
		return fmt.Errorf("failed to verify chain: %w", err)
	}

	if format == formatJSON {
		if err := writeJSON(writer, result); err != nil {
			return err
		}
	} else {
		outputVerifyChainText(writer, result)
	}

	logger.Info("verification completed",
		slog.String("tenant_id", tenantID),
		slog.Int("total_verified", result.TotalVerified),
		slog.Int("discrepancies", len(result.Discrepancies)),
		slog.Bool("flagged", result.Flagged),
	)

	if !result.Clean() {
		return fmt.Errorf("integrity check failed: %d discrepancy(ies)", len(result.Discrepancies))
	}
	return nil
}

func outputVerifyChainText(writer io.Writer, result *auditUseCase.TenantVerification) {
	_, _ = fmt.Fprintf(writer, "Audit Chain Verification\n")
	_, _ = fmt.Fprintf(writer, "========================\n\n")
	_, _ = fmt.Fprintf(writer, "Tenant:         %s\n", result.TenantID)
	_, _ = fmt.Fprintf(writer, "Total Verified: %d\n", result.TotalVerified)
	_, _ = fmt.Fprintf(writer, "Discrepancies:  %d\n\n", len(result.Discrepancies))

	if result.Clean() {
		_, _ = fmt.Fprintf(writer, "Chain intact.\n")
		return
	}

	_, _ = fmt.Fprintf(writer, "WARNING: chain integrity violated!\n\n")
	for _, d := range result.Discrepancies {
		_, _ = fmt.Fprintf(writer, "  - seq %d (%s): %s\n", d.Sequence, d.EntryID, d.Kind)
	}
	if result.Flagged {
		_, _ = fmt.Fprintf(writer, "\nLedger flagged and tamper alert enqueued.\n")
	} else if result.State != nil && result.State.Flagged() {
		_, _ = fmt.Fprintf(writer, "\nLedger already flagged since sequence %d.\n", result.State.FirstBadSequence)
	}
}
