package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	"github.com/allisson/casevault/internal/metrics"
)

// ledgerUseCaseWithMetrics decorates LedgerUseCase with metrics instrumentation.
type ledgerUseCaseWithMetrics struct {
	next    LedgerUseCase
	metrics metrics.BusinessMetrics
}

// NewLedgerUseCaseWithMetrics wraps a LedgerUseCase with metrics recording.
func NewLedgerUseCaseWithMetrics(useCase LedgerUseCase, m metrics.BusinessMetrics) LedgerUseCase {
	return &ledgerUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// record emits the operation counter and duration histogram for one audit call.
func (l *ledgerUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	l.metrics.RecordOperation(ctx, "audit", operation, status)
	l.metrics.RecordDuration(ctx, "audit", operation, time.Since(start), status)
}

// Append records metrics for ledger append operations.
func (l *ledgerUseCaseWithMetrics) Append(
	ctx context.Context,
	entry *auditDomain.Entry,
) (*auditDomain.Entry, error) {
	start := time.Now()
	stored, err := l.next.Append(ctx, entry)
	l.record(ctx, "audit_append", start, err)
	return stored, err
}

// VerifyChain records metrics for chain verification. A detected break is
// still a successful verification and is reported as status "success".
func (l *ledgerUseCaseWithMetrics) VerifyChain(
	ctx context.Context,
	tenantID string,
	rng auditDomain.Range,
) (*auditDomain.VerificationReport, error) {
	start := time.Now()
	report, err := l.next.VerifyChain(ctx, tenantID, rng)
	l.record(ctx, "audit_verify_chain", start, err)
	return report, err
}

// OnTamperDetected records metrics for tamper alert handling.
func (l *ledgerUseCaseWithMetrics) OnTamperDetected(
	ctx context.Context,
	tenantID string,
	entryID uuid.UUID,
	kind auditDomain.DiscrepancyKind,
) (*auditDomain.LedgerState, error) {
	start := time.Now()
	state, err := l.next.OnTamperDetected(ctx, tenantID, entryID, kind)
	l.record(ctx, "audit_tamper_detected", start, err)
	if err == nil {
		l.metrics.RecordIntegrityViolation(ctx, string(kind))
	}
	return state, err
}

// State records metrics for ledger head lookups.
func (l *ledgerUseCaseWithMetrics) State(ctx context.Context, tenantID string) (*auditDomain.LedgerState, error) {
	start := time.Now()
	state, err := l.next.State(ctx, tenantID)
	l.record(ctx, "audit_state", start, err)
	return state, err
}

// List records metrics for audit entry listing.
func (l *ledgerUseCaseWithMetrics) List(
	ctx context.Context,
	tenantID string,
	rng auditDomain.Range,
	limit int,
) ([]*auditDomain.Entry, error) {
	start := time.Now()
	entries, err := l.next.List(ctx, tenantID, rng, limit)
	l.record(ctx, "audit_list", start, err)
	return entries, err
}

// Tenants records metrics for tenant enumeration.
func (l *ledgerUseCaseWithMetrics) Tenants(ctx context.Context) ([]string, error) {
	start := time.Now()
	tenants, err := l.next.Tenants(ctx)
	l.record(ctx, "audit_tenants", start, err)
	return tenants, err
}

// PurgeExpired records metrics for retention purges.
func (l *ledgerUseCaseWithMetrics) PurgeExpired(
	ctx context.Context,
	tenantID string,
	retention time.Duration,
) (*auditDomain.PurgeResult, error) {
	start := time.Now()
	result, err := l.next.PurgeExpired(ctx, tenantID, retention)
	l.record(ctx, "audit_purge", start, err)
	return result, err
}
