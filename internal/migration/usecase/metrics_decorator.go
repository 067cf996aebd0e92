package usecase

import (
	"context"
	"time"

	"github.com/allisson/casevault/internal/metrics"
	migrationDomain "github.com/allisson/casevault/internal/migration/domain"
)

// migrationUseCaseWithMetrics decorates MigrationUseCase with metrics instrumentation.
type migrationUseCaseWithMetrics struct {
	next    MigrationUseCase
	metrics metrics.BusinessMetrics
}

// NewMigrationUseCaseWithMetrics wraps a MigrationUseCase with metrics recording.
func NewMigrationUseCaseWithMetrics(useCase MigrationUseCase, m metrics.BusinessMetrics) MigrationUseCase {
	return &migrationUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// record emits the operation counter and duration histogram for one migration
// run, plus the per-record outcome counters when a report is available.
func (u *migrationUseCaseWithMetrics) record(
	ctx context.Context,
	operation string,
	start time.Time,
	result *migrationDomain.Result,
	err error,
) {
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case result != nil:
		if _, _, failed, _ := result.Totals(); failed > 0 {
			status = "partial"
		}
	}
	if result != nil {
		for _, c := range result.Collections {
			u.metrics.RecordRecords(ctx, c.Collection, "succeeded", c.Succeeded)
			u.metrics.RecordRecords(ctx, c.Collection, "failed", c.Failed)
			u.metrics.RecordRecords(ctx, c.Collection, "skipped", c.Skipped)
		}
	}

	u.metrics.RecordOperation(ctx, "migration", operation, status)
	u.metrics.RecordDuration(ctx, "migration", operation, time.Since(start), status)
}

// Run records metrics for re-encryption runs.
func (u *migrationUseCaseWithMetrics) Run(
	ctx context.Context,
	tenantID string,
	oldVersion, newVersion uint,
) (*migrationDomain.Result, error) {
	start := time.Now()
	result, err := u.next.Run(ctx, tenantID, oldVersion, newVersion)
	u.record(ctx, "migration_run", start, result, err)
	return result, err
}

// RunInitialEncryption records metrics for initial encryption runs.
func (u *migrationUseCaseWithMetrics) RunInitialEncryption(
	ctx context.Context,
	tenantID string,
) (*migrationDomain.Result, error) {
	start := time.Now()
	result, err := u.next.RunInitialEncryption(ctx, tenantID)
	u.record(ctx, "migration_initial_encryption", start, result, err)
	return result, err
}
