package app

import (
	"fmt"

	encryptionUseCase "github.com/allisson/casevault/internal/encryption/usecase"
)

// encryptionComponents holds the encryption use case shared by the migration
// engine and application code.
type encryptionComponents struct {
	encryptionUseCase lazy[encryptionUseCase.EncryptionUseCase]
}

// EncryptionUseCase returns the tenant encryption façade.
func (c *Container) EncryptionUseCase() (encryptionUseCase.EncryptionUseCase, error) {
	return c.encryptionUseCase.get(c.initEncryptionUseCase)
}

func (c *Container) initEncryptionUseCase() (encryptionUseCase.EncryptionUseCase, error) {
	keys, err := c.TenantKeyUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant key use case for encryption use case: %w", err)
	}
	ledger, err := c.LedgerUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger use case for encryption use case: %w", err)
	}

	useCase := encryptionUseCase.NewEncryptionUseCase(keys, c.AEADManager(), ledger, c.Logger())

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for encryption use case: %w", err)
		}
		return encryptionUseCase.NewEncryptionUseCaseWithMetrics(useCase, businessMetrics), nil
	}
	return useCase, nil
}
