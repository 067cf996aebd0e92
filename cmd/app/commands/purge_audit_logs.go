package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
)

// LedgerPurger archives and deletes expired ledger entries.
type LedgerPurger interface {
	Tenants(ctx context.Context) ([]string, error)
	PurgeExpired(ctx context.Context, tenantID string, retention time.Duration) (*auditDomain.PurgeResult, error)
}

// RunPurgeAuditLogs archives then deletes entries older than retentionDays for
// one tenant, or for every tenant when tenantID is empty. Flagged ledgers are
// refused by the ledger and reported without stopping the other tenants.
//
// Requirements: Database must be migrated and AUDIT_ARCHIVE_URL must be writable.
func RunPurgeAuditLogs(
	ctx context.Context,
	ledger LedgerPurger,
	logger *slog.Logger,
	writer io.Writer,
	tenantID string,
	retentionDays int,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if retentionDays <= 0 {
		return fmt.Errorf("retention-days must be greater than zero")
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	tenants := []string{tenantID}
	if tenantID == "" {
		all, err := ledger.Tenants(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tenants: %w", err)
		}
		tenants = all
	}

	logger.Info("purging audit logs",
		slog.Int("tenants", len(tenants)),
		slog.Int("retention_days", retentionDays),
	)

	results := make([]*auditDomain.PurgeResult, 0, len(tenants))
	failed := 0
	for _, tenant := range tenants {
		result, err := ledger.PurgeExpired(ctx, tenant, retention)
		if err != nil {
			failed++
			logger.Error("failed to purge tenant ledger",
				slog.String("tenant_id", tenant),
				slog.Any("error", err),
			)
			if format != formatJSON {
				_, _ = fmt.Fprintf(writer, "%s: error: %v\n", tenant, err)
			}
			continue
		}
		results = append(results, result)
		if format != formatJSON {
			_, _ = fmt.Fprintf(writer, "%s: archived=%d deleted=%d anchor=%d\n",
				result.TenantID, result.Archived, result.Deleted, result.AnchorSequence)
		}
	}

	if format == formatJSON {
		if err := writeJSON(writer, map[string]any{"results": results, "failed": failed}); err != nil {
			return err
		}
	}

	logger.Info("audit log purge completed",
		slog.Int("purged", len(results)),
		slog.Int("failed", failed),
	)

	if failed > 0 {
		return fmt.Errorf("failed to purge %d tenant ledger(s)", failed)
	}
	return nil
}
