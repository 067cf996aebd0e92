// Package usecase implements per-tenant key management: lazy DEK creation,
// versioned rotation and version lookup, backed by a KMS and an in-memory cache.
//
// # Key Versions
//
// Each tenant has at most one active DEK version. Versions start at 1 and only
// grow; a rotated version stays readable so existing ciphertext can still be
// decrypted until a migration re-encrypts it. DEKs are stored wrapped by the
// KMS master key and never persisted in plaintext.
//
// # Caching
//
// Unwrapped DEKs are cached per (tenant, version) for DEK_CACHE_TTL, retired
// versions included. Concurrent misses for the same entry share one KMS call,
// and a caller whose context ends stops waiting without canceling the call for
// the others.
//
// # Rotation
//
// RotateKey runs in one transaction holding a row lock on the active version,
// so two processes rotating the same tenant cannot both succeed. Every rotation
// is appended to the tenant's audit ledger in the same transaction.
//
// # Usage Example
//
//	key, err := keys.GetOrCreateActiveKey(ctx, "tenant-a")
//	if err != nil {
//		return err
//	}
//	defer key.Wipe()
package usecase

import (
	"context"
	"time"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
)

// TenantKeyRepository persists TenantKey rows.
//
// Implementations must enforce uniqueness of (tenant_id, version) and of the
// active row per tenant, returning ErrKeyAlreadyExists on violation, so two
// processes can never fork a tenant's key chain. All methods participate in a
// transaction carried by ctx.
type TenantKeyRepository interface {
	// Create inserts a new version. WrappedKey must be set; Key is never stored.
	Create(ctx context.Context, key *cryptoDomain.TenantKey) error

	// Deactivate retires a version by clearing is_active and setting rotated_at.
	Deactivate(ctx context.Context, tenantID string, version uint, rotatedAt time.Time) error

	// GetActive returns the active version or ErrKeyNotFound.
	GetActive(ctx context.Context, tenantID string) (*cryptoDomain.TenantKey, error)

	// GetActiveForUpdate is GetActive with a row lock held until the
	// transaction in ctx ends. Concurrent rotations of one tenant serialize on it.
	GetActiveForUpdate(ctx context.Context, tenantID string) (*cryptoDomain.TenantKey, error)

	// GetByVersion returns a specific version or ErrKeyVersionNotFound.
	GetByVersion(ctx context.Context, tenantID string, version uint) (*cryptoDomain.TenantKey, error)

	// ListByTenant returns every version ordered by version descending.
	ListByTenant(ctx context.Context, tenantID string) ([]*cryptoDomain.TenantKey, error)
}

// AuditAppender records key lifecycle events on the tenant's audit ledger.
type AuditAppender interface {
	Append(ctx context.Context, entry *auditDomain.Entry) (*auditDomain.Entry, error)
}

// TenantKeyUseCase manages the DEK chain of every tenant.
//
// Returned TenantKeys carry the plaintext DEK in Key. Each call returns a fresh
// copy which the caller should Wipe once done.
type TenantKeyUseCase interface {
	// GetOrCreateActiveKey returns the active DEK, creating version 1 on first use.
	GetOrCreateActiveKey(ctx context.Context, tenantID string) (*cryptoDomain.TenantKey, error)

	// GetActiveKey returns the active DEK or ErrKeyNotFound. Never creates.
	GetActiveKey(ctx context.Context, tenantID string) (*cryptoDomain.TenantKey, error)

	// GetKeyByVersion returns a specific DEK version, active or retired.
	GetKeyByVersion(ctx context.Context, tenantID string, version uint) (*cryptoDomain.TenantKey, error)

	// RotateKey creates version n+1 as active and retires version n atomically.
	RotateKey(ctx context.Context, tenantID string) (*cryptoDomain.RotationResult, error)

	// ListVersions returns the non-secret metadata of every version.
	ListVersions(ctx context.Context, tenantID string) ([]cryptoDomain.KeyVersionInfo, error)

	// InvalidateCache drops the cached DEK so the next access re-reads the store.
	InvalidateCache(tenantID string)

	// HealthCheck reports whether the master key is usable.
	HealthCheck(ctx context.Context) (cryptoDomain.KMSKeyInfo, error)
}
