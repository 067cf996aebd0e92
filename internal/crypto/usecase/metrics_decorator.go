package usecase

import (
	"context"
	"time"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
	"github.com/allisson/casevault/internal/metrics"
)

// tenantKeyUseCaseWithMetrics decorates TenantKeyUseCase with metrics instrumentation.
type tenantKeyUseCaseWithMetrics struct {
	next    TenantKeyUseCase
	metrics metrics.BusinessMetrics
}

// NewTenantKeyUseCaseWithMetrics wraps a TenantKeyUseCase with metrics recording.
func NewTenantKeyUseCaseWithMetrics(useCase TenantKeyUseCase, m metrics.BusinessMetrics) TenantKeyUseCase {
	return &tenantKeyUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// record emits the operation counter and duration histogram for one key call.
func (t *tenantKeyUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	t.metrics.RecordOperation(ctx, "crypto", operation, status)
	t.metrics.RecordDuration(ctx, "crypto", operation, time.Since(start), status)
}

// GetOrCreateActiveKey records metrics for active key resolution, including
// the lazy creation of a tenant's first version.
func (t *tenantKeyUseCaseWithMetrics) GetOrCreateActiveKey(
	ctx context.Context,
	tenantID string,
) (*cryptoDomain.TenantKey, error) {
	start := time.Now()
	key, err := t.next.GetOrCreateActiveKey(ctx, tenantID)
	t.record(ctx, "key_get_or_create", start, err)
	return key, err
}

// GetActiveKey records metrics for active key lookups.
func (t *tenantKeyUseCaseWithMetrics) GetActiveKey(
	ctx context.Context,
	tenantID string,
) (*cryptoDomain.TenantKey, error) {
	start := time.Now()
	key, err := t.next.GetActiveKey(ctx, tenantID)
	t.record(ctx, "key_get_active", start, err)
	return key, err
}

// GetKeyByVersion records metrics for versioned key lookups.
func (t *tenantKeyUseCaseWithMetrics) GetKeyByVersion(
	ctx context.Context,
	tenantID string,
	version uint,
) (*cryptoDomain.TenantKey, error) {
	start := time.Now()
	key, err := t.next.GetKeyByVersion(ctx, tenantID, version)
	t.record(ctx, "key_get_by_version", start, err)
	return key, err
}

// RotateKey records metrics for key rotations.
func (t *tenantKeyUseCaseWithMetrics) RotateKey(
	ctx context.Context,
	tenantID string,
) (*cryptoDomain.RotationResult, error) {
	start := time.Now()
	result, err := t.next.RotateKey(ctx, tenantID)
	t.record(ctx, "key_rotate", start, err)
	return result, err
}

// ListVersions records metrics for version listing.
func (t *tenantKeyUseCaseWithMetrics) ListVersions(
	ctx context.Context,
	tenantID string,
) ([]cryptoDomain.KeyVersionInfo, error) {
	start := time.Now()
	infos, err := t.next.ListVersions(ctx, tenantID)
	t.record(ctx, "key_list_versions", start, err)
	return infos, err
}

// InvalidateCache is not instrumented; it only drops cache entries.
func (t *tenantKeyUseCaseWithMetrics) InvalidateCache(tenantID string) {
	t.next.InvalidateCache(tenantID)
}

// HealthCheck records metrics for KMS health checks.
func (t *tenantKeyUseCaseWithMetrics) HealthCheck(ctx context.Context) (cryptoDomain.KMSKeyInfo, error) {
	start := time.Now()
	info, err := t.next.HealthCheck(ctx)
	t.record(ctx, "kms_health_check", start, err)
	return info, err
}
