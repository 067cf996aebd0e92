package app

import (
	"database/sql"
	"fmt"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
	cryptoHTTP "github.com/allisson/casevault/internal/crypto/http"
	cryptoRepository "github.com/allisson/casevault/internal/crypto/repository"
	cryptoService "github.com/allisson/casevault/internal/crypto/service"
	cryptoUseCase "github.com/allisson/casevault/internal/crypto/usecase"
)

// cryptoComponents holds the key management graph: the KMS keeper and the
// wrapper in front of it, the DEK cache, the tenant key store and the use case
// assembled from them.
type cryptoComponents struct {
	kmsKeeper        lazy[cryptoDomain.KMSKeeper]
	keyWrapper       lazy[cryptoService.KeyWrapper]
	keyCache         lazy[*cryptoService.TTLKeyCache]
	aeadManager      lazy[cryptoService.AEADManager]
	tenantKeyRepo    lazy[cryptoUseCase.TenantKeyRepository]
	tenantKeyUseCase lazy[cryptoUseCase.TenantKeyUseCase]
	keyHandler       lazy[*cryptoHTTP.KeyHandler]
}

// KMSKeeper returns the keeper for KMS_KEY_URI, or nil when KMS is disabled.
func (c *Container) KMSKeeper() (cryptoDomain.KMSKeeper, error) {
	return c.kmsKeeper.get(c.initKMSKeeper)
}

// KeyWrapper returns the master key wrapper. With KMS disabled every call fails closed.
func (c *Container) KeyWrapper() (cryptoService.KeyWrapper, error) {
	return c.keyWrapper.get(c.initKeyWrapper)
}

// KeyCache returns the in-memory cache of unwrapped DEKs.
func (c *Container) KeyCache() *cryptoService.TTLKeyCache {
	cache, _ := c.keyCache.get(func() (*cryptoService.TTLKeyCache, error) {
		return cryptoService.NewTTLKeyCache(c.config.DEKCacheTTL), nil
	})
	return cache
}

// AEADManager returns the AEAD cipher factory.
func (c *Container) AEADManager() cryptoService.AEADManager {
	manager, _ := c.aeadManager.get(func() (cryptoService.AEADManager, error) {
		return cryptoService.NewAEADManager(), nil
	})
	return manager
}

// TenantKeyRepository returns the DEK store for the configured driver.
func (c *Container) TenantKeyRepository() (cryptoUseCase.TenantKeyRepository, error) {
	return c.tenantKeyRepo.get(func() (cryptoUseCase.TenantKeyRepository, error) {
		return sqlRepository(c, "tenant key repository",
			func() cryptoUseCase.TenantKeyRepository {
				return cryptoRepository.NewMemoryTenantKeyRepository()
			},
			func(db *sql.DB) cryptoUseCase.TenantKeyRepository {
				return cryptoRepository.NewPostgreSQLTenantKeyRepository(db)
			},
			func(db *sql.DB) cryptoUseCase.TenantKeyRepository {
				return cryptoRepository.NewMySQLTenantKeyRepository(db)
			},
		)
	})
}

// TenantKeyUseCase returns the key management use case.
func (c *Container) TenantKeyUseCase() (cryptoUseCase.TenantKeyUseCase, error) {
	return c.tenantKeyUseCase.get(c.initTenantKeyUseCase)
}

// KeyHandler returns the HTTP handler for key rotation and listing.
func (c *Container) KeyHandler() (*cryptoHTTP.KeyHandler, error) {
	return c.keyHandler.get(func() (*cryptoHTTP.KeyHandler, error) {
		useCase, err := c.TenantKeyUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get tenant key use case for key handler: %w", err)
		}
		return cryptoHTTP.NewKeyHandler(useCase, c.Logger()), nil
	})
}

// initKMSKeeper opens the keeper for KMS_KEY_URI on the container context.
// It returns a nil keeper when KMS_ENABLED is false and an error when KMS is
// enabled without a key URI.
func (c *Container) initKMSKeeper() (cryptoDomain.KMSKeeper, error) {
	if !c.config.KMSEnabled {
		return nil, nil
	}
	if c.config.KMSKeyURI == "" {
		return nil, fmt.Errorf("KMS_KEY_URI is required when KMS_ENABLED is true")
	}
	keeper, err := cryptoService.NewKMSService().OpenKeeper(c.ctx, c.config.KMSKeyURI)
	if err != nil {
		return nil, err
	}
	return keeper, nil
}

// initKeyWrapper wraps the keeper with retry and error classification.
// With KMS disabled it returns a wrapper whose every call fails closed, so the
// server still starts and reports the KMS as unavailable on /ready.
func (c *Container) initKeyWrapper() (cryptoService.KeyWrapper, error) {
	if !c.config.KMSEnabled {
		c.Logger().Warn("kms disabled, key management will fail closed")
		return cryptoService.NewDisabledKeyWrapper(c.config.KMSKeyID), nil
	}
	keeper, err := c.KMSKeeper()
	if err != nil {
		return nil, fmt.Errorf("failed to open kms keeper: %w", err)
	}
	return cryptoService.NewKeyWrapper(keeper, c.config.KMSKeyID, c.config.KMSRetryMaxElapsed), nil
}

// initTenantKeyUseCase assembles the key management use case. Rotations are
// recorded in the audit ledger, so the ledger use case is resolved first.
func (c *Container) initTenantKeyUseCase() (cryptoUseCase.TenantKeyUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for tenant key use case: %w", err)
	}
	repo, err := c.TenantKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant key repository: %w", err)
	}
	wrapper, err := c.KeyWrapper()
	if err != nil {
		return nil, err
	}
	ledger, err := c.LedgerUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger use case for tenant key use case: %w", err)
	}

	useCase := cryptoUseCase.NewTenantKeyUseCase(
		txManager,
		repo,
		wrapper,
		c.KeyCache(),
		ledger,
		c.Logger(),
		cryptoUseCase.TenantKeyConfig{
			Algorithm:           cryptoDomain.AESGCM,
			RotationGracePeriod: c.config.KeyRotationGracePeriod,
		},
	)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for tenant key use case: %w", err)
		}
		return cryptoUseCase.NewTenantKeyUseCaseWithMetrics(useCase, businessMetrics), nil
	}
	return useCase, nil
}
