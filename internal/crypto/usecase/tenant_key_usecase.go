package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
	cryptoService "github.com/allisson/casevault/internal/crypto/service"
	"github.com/allisson/casevault/internal/database"
	"github.com/allisson/casevault/internal/tenantlock"
)

// TenantKeyConfig tunes the key management use case.
type TenantKeyConfig struct {
	// Algorithm is used for newly created versions.
	Algorithm cryptoDomain.Algorithm
	// RotationGracePeriod is the minimum age of the active version before it may be rotated.
	RotationGracePeriod time.Duration
}

// tenantKeyUseCase implements TenantKeyUseCase on top of a TenantKeyRepository,
// a KMS-backed KeyWrapper and a KeyCache.
//
// Every path that changes a tenant's chain (first creation and rotation) runs
// under the tenant's lock from tenantlock, so two goroutines in this process
// never race on the same tenant. Across processes the repository's uniqueness
// constraints make the losing writer fail with ErrKeyAlreadyExists.
//
// Loads of the same tenant are collapsed with singleflight: a cold cache costs
// one KMS unwrap no matter how many requests arrive at once.
type tenantKeyUseCase struct {
	txManager database.TxManager
	repo      TenantKeyRepository
	wrapper   cryptoService.KeyWrapper
	cache     cryptoService.KeyCache
	audit     AuditAppender
	logger    *slog.Logger
	cfg       TenantKeyConfig

	locks *tenantlock.Locker
	group singleflight.Group
	now   func() time.Time
}

// GetOrCreateActiveKey returns the tenant's active DEK, creating version 1 when
// the tenant has none yet.
//
// Creation generates the DEK locally, wraps it with the KMS and then stores the
// row and a key.created audit entry in one transaction. If the KMS is
// unreachable nothing is stored and the error is returned: there is no
// plaintext fallback.
//
// Parameters:
//   - ctx: Context for cancellation; also carries the actor recorded on the audit entry
//   - tenantID: The tenant whose key is requested
//
// Returns:
//   - A copy of the active TenantKey with Key populated; the caller should Wipe it
//   - ErrInvalidTenantID, a KMS error or a storage error
func (u *tenantKeyUseCase) GetOrCreateActiveKey(
	ctx context.Context,
	tenantID string,
) (*cryptoDomain.TenantKey, error) {
	return u.active(ctx, tenantID, true)
}

// GetActiveKey returns the tenant's active DEK. It never creates one and returns
// ErrKeyNotFound for a tenant without keys.
func (u *tenantKeyUseCase) GetActiveKey(ctx context.Context, tenantID string) (*cryptoDomain.TenantKey, error) {
	return u.active(ctx, tenantID, false)
}

// active serves the active DEK from the cache or loads it.
//
// Concurrent misses for one tenant share a single load. The shared load runs
// detached from any one caller's cancellation, and each caller stops waiting
// when its own ctx is done, so a caller that gives up never fails the others.
//
// Parameters:
//   - ctx: The caller's context
//   - tenantID: The tenant whose key is requested
//   - create: Whether a missing chain should be started at version 1
//
// Returns:
//   - A copy of the active TenantKey
//   - ctx.Err() when the caller's context ends first, or the load error
func (u *tenantKeyUseCase) active(
	ctx context.Context,
	tenantID string,
	create bool,
) (*cryptoDomain.TenantKey, error) {
	if tenantID == "" {
		return nil, cryptoDomain.ErrInvalidTenantID
	}
	if key, ok := u.cache.Get(tenantID); ok {
		return key, nil
	}

	flightKey := tenantID
	if create {
		flightKey = "create:" + tenantID
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := u.group.DoChan(flightKey, func() (any, error) {
		var key *cryptoDomain.TenantKey
		err := u.locks.WithLock(loadCtx, tenantID, func(ctx context.Context) error {
			var err error
			key, err = u.loadActive(ctx, tenantID)
			if create && errors.Is(err, cryptoDomain.ErrKeyNotFound) {
				key, err = u.createInitial(ctx, tenantID)
			}
			if err != nil {
				return err
			}
			u.cache.Set(key)
			return nil
		})
		return key, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*cryptoDomain.TenantKey).Clone(), nil
	}
}

// loadActive reads the active row and unwraps its DEK.
func (u *tenantKeyUseCase) loadActive(ctx context.Context, tenantID string) (*cryptoDomain.TenantKey, error) {
	key, err := u.repo.GetActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := u.unwrap(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// unwrap asks the KMS for the plaintext DEK of key and stores it in key.Key.
// Failures are logged with the tenant and version, never with key material.
func (u *tenantKeyUseCase) unwrap(ctx context.Context, key *cryptoDomain.TenantKey) error {
	dek, err := u.wrapper.UnwrapKey(ctx, key.WrappedKey)
	if err != nil {
		u.logger.Error("failed to unwrap tenant key",
			slog.String("tenant_id", key.TenantID),
			slog.Uint64("version", uint64(key.Version)),
			slog.Any("error", err),
		)
		return err
	}
	key.Key = dek
	return nil
}

// newVersion generates and wraps a fresh DEK. The KMS round trip happens
// before any transaction is opened.
//
// Parameters:
//   - ctx: Context for the KMS call
//   - tenantID: The owning tenant
//   - version: The version number the new key will carry
//
// Returns:
//   - An active TenantKey holding both the plaintext and wrapped DEK
//   - An error if key generation or wrapping fails; no material is leaked on error
func (u *tenantKeyUseCase) newVersion(
	ctx context.Context,
	tenantID string,
	version uint,
) (*cryptoDomain.TenantKey, error) {
	dek, err := cryptoService.GenerateKey()
	if err != nil {
		return nil, err
	}

	wrapped, err := u.wrapper.WrapKey(ctx, dek)
	if err != nil {
		cryptoDomain.Zero(dek)
		return nil, err
	}

	return &cryptoDomain.TenantKey{
		ID:          uuid.Must(uuid.NewV7()),
		TenantID:    tenantID,
		Version:     version,
		Algorithm:   u.cfg.Algorithm,
		MasterKeyID: u.wrapper.KeyID(),
		WrappedKey:  wrapped,
		Key:         dek,
		IsActive:    true,
		CreatedAt:   u.now().UTC(),
	}, nil
}

// createInitial stores version 1 for a tenant that has no chain yet.
//
// When another process wins the race the unique constraint surfaces as
// ErrKeyAlreadyExists; the freshly generated key is wiped and the winner's
// version is loaded instead, so both processes converge on the same DEK.
func (u *tenantKeyUseCase) createInitial(ctx context.Context, tenantID string) (*cryptoDomain.TenantKey, error) {
	key, err := u.newVersion(ctx, tenantID, 1)
	if err != nil {
		return nil, err
	}

	err = u.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := u.repo.Create(ctx, key); err != nil {
			return err
		}
		_, err := u.audit.Append(ctx, &auditDomain.Entry{
			TenantID:     tenantID,
			Action:       auditDomain.ActionKeyCreated,
			ActorID:      auditDomain.ActorFromContext(ctx),
			ResourceType: "tenant_key",
			ResourceID:   key.ID.String(),
			Details: map[string]string{
				"version":       "1",
				"algorithm":     string(key.Algorithm),
				"master_key_id": key.MasterKeyID,
			},
		})
		return err
	})
	if errors.Is(err, cryptoDomain.ErrKeyAlreadyExists) {
		key.Wipe()
		return u.loadActive(ctx, tenantID)
	}
	if err != nil {
		key.Wipe()
		return nil, err
	}

	u.logger.Info("tenant key created",
		slog.String("tenant_id", tenantID),
		slog.String("master_key_id", key.MasterKeyID),
	)
	return key, nil
}

// GetKeyByVersion returns a specific DEK version, active or retired.
//
// Lookup order:
//   - the cached active key, when its version matches
//   - the cached retired version
//   - the active key path, which loads and caches the active version under the tenant lock
//   - the repository, for retired versions, cached per (tenant, version) afterwards
//
// In steady state a decrypt therefore never reaches the KMS, and a migration
// unwraps each version it touches once per cache TTL.
//
// Parameters:
//   - ctx: Context for cancellation
//   - tenantID: The owning tenant
//   - version: The version recorded in the envelope being opened
//
// Returns:
//   - A copy of the TenantKey with Key populated; the caller should Wipe it
//   - ErrKeyVersionNotFound for an unknown version, or a KMS or storage error
func (u *tenantKeyUseCase) GetKeyByVersion(
	ctx context.Context,
	tenantID string,
	version uint,
) (*cryptoDomain.TenantKey, error) {
	if tenantID == "" {
		return nil, cryptoDomain.ErrInvalidTenantID
	}
	if key, ok := u.cache.Get(tenantID); ok {
		if key.Version == version {
			return key, nil
		}
		key.Wipe()
	}
	if key, ok := u.cache.GetVersion(tenantID, version); ok {
		return key, nil
	}

	active, err := u.active(ctx, tenantID, false)
	switch {
	case err == nil && active.Version == version:
		return active, nil
	case err == nil:
		active.Wipe()
	case !errors.Is(err, cryptoDomain.ErrKeyNotFound):
		return nil, err
	}

	return u.retired(ctx, tenantID, version)
}

// retired loads a non-active version and caches it. Concurrent loads of one
// version share a single KMS unwrap.
func (u *tenantKeyUseCase) retired(
	ctx context.Context,
	tenantID string,
	version uint,
) (*cryptoDomain.TenantKey, error) {
	loadCtx := context.WithoutCancel(ctx)
	flightKey := "version:" + tenantID + ":" + strconv.FormatUint(uint64(version), 10)
	ch := u.group.DoChan(flightKey, func() (any, error) {
		key, err := u.repo.GetByVersion(loadCtx, tenantID, version)
		if err != nil {
			return nil, err
		}
		if err := u.unwrap(loadCtx, key); err != nil {
			return nil, err
		}
		u.cache.SetVersion(key)
		return key, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*cryptoDomain.TenantKey).Clone(), nil
	}
}

// RotateKey creates version n+1 as the active DEK and retires version n.
//
// The new DEK is generated and wrapped before the transaction opens so no
// database lock is held across a KMS call. Inside the transaction the active
// row is re-read with a locking read; if another process rotated in the
// meantime the version no longer matches and the rotation is abandoned with
// ErrKeyAlreadyExists. Retiring the old row, inserting the new one and the
// key.rotated audit entry commit together, so a tenant always has exactly one
// active version and a contiguous version sequence.
//
// Retired versions are never deleted: ciphertext written under them stays
// readable until a migration moves it to the new version.
//
// Parameters:
//   - ctx: Context for cancellation; also carries the actor recorded on the audit entry
//   - tenantID: The tenant to rotate
//
// Returns:
//   - The old and new version numbers
//   - ErrKeyNotFound when the tenant has no key, ErrRotationTooSoon inside the
//     grace period, ErrKeyAlreadyExists when a concurrent rotation won, or a
//     KMS or storage error
func (u *tenantKeyUseCase) RotateKey(ctx context.Context, tenantID string) (*cryptoDomain.RotationResult, error) {
	if tenantID == "" {
		return nil, cryptoDomain.ErrInvalidTenantID
	}

	var result *cryptoDomain.RotationResult
	err := u.locks.WithLock(ctx, tenantID, func(ctx context.Context) error {
		current, err := u.repo.GetActive(ctx, tenantID)
		if err != nil {
			return err
		}

		now := u.now().UTC()
		if u.cfg.RotationGracePeriod > 0 && now.Sub(current.CreatedAt) < u.cfg.RotationGracePeriod {
			return cryptoDomain.ErrRotationTooSoon
		}

		next, err := u.newVersion(ctx, tenantID, current.Version+1)
		if err != nil {
			return err
		}
		defer next.Wipe()

		err = u.txManager.WithTx(ctx, func(ctx context.Context) error {
			locked, err := u.repo.GetActiveForUpdate(ctx, tenantID)
			if err != nil {
				return err
			}
			if locked.Version != current.Version {
				return cryptoDomain.ErrKeyAlreadyExists
			}
			if err := u.repo.Deactivate(ctx, tenantID, current.Version, now); err != nil {
				return err
			}
			if err := u.repo.Create(ctx, next); err != nil {
				return err
			}
			_, err = u.audit.Append(ctx, &auditDomain.Entry{
				TenantID:     tenantID,
				Action:       auditDomain.ActionKeyRotated,
				ActorID:      auditDomain.ActorFromContext(ctx),
				ResourceType: "tenant_key",
				ResourceID:   next.ID.String(),
				Details: map[string]string{
					"old_version":   strconv.FormatUint(uint64(current.Version), 10),
					"new_version":   strconv.FormatUint(uint64(next.Version), 10),
					"algorithm":     string(next.Algorithm),
					"master_key_id": next.MasterKeyID,
				},
			})
			return err
		})
		if err != nil {
			return err
		}

		u.cache.Invalidate(tenantID)
		result = &cryptoDomain.RotationResult{
			TenantID:   tenantID,
			OldVersion: current.Version,
			NewVersion: next.Version,
			RotatedAt:  now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("tenant key rotated",
		slog.String("tenant_id", tenantID),
		slog.Uint64("old_version", uint64(result.OldVersion)),
		slog.Uint64("new_version", uint64(result.NewVersion)),
	)
	return result, nil
}

// ListVersions returns the non-secret metadata of every version, newest first.
// Nothing is unwrapped, so it works while the KMS is unavailable.
func (u *tenantKeyUseCase) ListVersions(
	ctx context.Context,
	tenantID string,
) ([]cryptoDomain.KeyVersionInfo, error) {
	if tenantID == "" {
		return nil, cryptoDomain.ErrInvalidTenantID
	}
	keys, err := u.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	infos := make([]cryptoDomain.KeyVersionInfo, 0, len(keys))
	for _, k := range keys {
		infos = append(infos, k.Info())
	}
	return infos, nil
}

// InvalidateCache drops every cached version of tenantID.
func (u *tenantKeyUseCase) InvalidateCache(tenantID string) {
	u.cache.Invalidate(tenantID)
}

// HealthCheck describes the master key through the KMS.
func (u *tenantKeyUseCase) HealthCheck(ctx context.Context) (cryptoDomain.KMSKeyInfo, error) {
	return u.wrapper.DescribeKey(ctx)
}

// NewTenantKeyUseCase creates a TenantKeyUseCase.
//
// Parameters:
//   - txManager: Runs creation and rotation atomically with their audit entries
//   - repo: The TenantKey store for the configured database driver
//   - wrapper: Wraps and unwraps DEKs with the KMS master key
//   - cache: Holds unwrapped DEKs between calls
//   - audit: Records key.created and key.rotated on the tenant's ledger
//   - logger: Structured logger; key material is never logged
//   - cfg: Algorithm for new versions and the rotation grace period
//
// An empty cfg.Algorithm defaults to AES-256-GCM.
func NewTenantKeyUseCase(
	txManager database.TxManager,
	repo TenantKeyRepository,
	wrapper cryptoService.KeyWrapper,
	cache cryptoService.KeyCache,
	audit AuditAppender,
	logger *slog.Logger,
	cfg TenantKeyConfig,
) TenantKeyUseCase {
	if cfg.Algorithm == "" {
		cfg.Algorithm = cryptoDomain.AESGCM
	}
	return &tenantKeyUseCase{
		txManager: txManager,
		repo:      repo,
		wrapper:   wrapper,
		cache:     cache,
		audit:     audit,
		logger:    logger,
		cfg:       cfg,
		locks:     tenantlock.New(),
		now:       time.Now,
	}
}
