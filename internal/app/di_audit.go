package app

import (
	"database/sql"
	"fmt"
	"time"

	auditHTTP "github.com/allisson/casevault/internal/audit/http"
	auditRepository "github.com/allisson/casevault/internal/audit/repository"
	auditService "github.com/allisson/casevault/internal/audit/service"
	auditUseCase "github.com/allisson/casevault/internal/audit/usecase"
	"github.com/allisson/casevault/internal/config"
)

// auditComponents holds the ledger graph: the digest, the purge archive, the
// entry and head stores and the use case built on them.
type auditComponents struct {
	hasher         lazy[auditService.Hasher]
	archiver       lazy[*auditService.BlobArchiver]
	entryRepo      lazy[auditUseCase.EntryRepository]
	stateRepo      lazy[auditUseCase.LedgerStateRepository]
	ledgerUseCase  lazy[auditUseCase.LedgerUseCase]
	integritySweep lazy[*auditUseCase.IntegritySweep]
	ledgerHandler  lazy[*auditHTTP.LedgerHandler]
}

// Hasher returns the ledger digest for AUDIT_HASH_ALGORITHM.
func (c *Container) Hasher() (auditService.Hasher, error) {
	return c.hasher.get(func() (auditService.Hasher, error) {
		return auditService.NewHasher(auditService.HashAlgorithm(c.config.AuditHashAlgorithm))
	})
}

// AuditArchiver returns the blob archive receiving purged entries.
func (c *Container) AuditArchiver() (*auditService.BlobArchiver, error) {
	return c.archiver.get(func() (*auditService.BlobArchiver, error) {
		return auditService.OpenBlobArchiver(c.ctx, c.config.AuditArchiveURL)
	})
}

// AuditEntryRepository returns the ledger entry store for the configured driver.
func (c *Container) AuditEntryRepository() (auditUseCase.EntryRepository, error) {
	return c.entryRepo.get(func() (auditUseCase.EntryRepository, error) {
		return sqlRepository(c, "audit entry repository",
			func() auditUseCase.EntryRepository { return auditRepository.NewMemoryEntryRepository() },
			func(db *sql.DB) auditUseCase.EntryRepository { return auditRepository.NewPostgreSQLEntryRepository(db) },
			func(db *sql.DB) auditUseCase.EntryRepository { return auditRepository.NewMySQLEntryRepository(db) },
		)
	})
}

// LedgerStateRepository returns the ledger state store for the configured driver.
func (c *Container) LedgerStateRepository() (auditUseCase.LedgerStateRepository, error) {
	return c.stateRepo.get(func() (auditUseCase.LedgerStateRepository, error) {
		return sqlRepository(c, "ledger state repository",
			func() auditUseCase.LedgerStateRepository { return auditRepository.NewMemoryStateRepository() },
			func(db *sql.DB) auditUseCase.LedgerStateRepository {
				return auditRepository.NewPostgreSQLStateRepository(db)
			},
			func(db *sql.DB) auditUseCase.LedgerStateRepository {
				return auditRepository.NewMySQLStateRepository(db)
			},
		)
	})
}

// LedgerUseCase returns the audit ledger use case.
func (c *Container) LedgerUseCase() (auditUseCase.LedgerUseCase, error) {
	return c.ledgerUseCase.get(c.initLedgerUseCase)
}

// IntegritySweep returns the background chain verifier.
func (c *Container) IntegritySweep() (*auditUseCase.IntegritySweep, error) {
	return c.integritySweep.get(func() (*auditUseCase.IntegritySweep, error) {
		ledger, err := c.LedgerUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get ledger use case for integrity sweep: %w", err)
		}
		return auditUseCase.NewIntegritySweep(
			auditUseCase.SweepConfig{
				Interval:    c.config.IntegritySweepInterval,
				Concurrency: c.config.IntegritySweepConcurrency,
			},
			ledger,
			c.Logger(),
		), nil
	})
}

// LedgerHandler returns the HTTP handler for ledger inspection and verification.
func (c *Container) LedgerHandler() (*auditHTTP.LedgerHandler, error) {
	return c.ledgerHandler.get(func() (*auditHTTP.LedgerHandler, error) {
		ledger, err := c.LedgerUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get ledger use case for ledger handler: %w", err)
		}
		sweep, err := c.IntegritySweep()
		if err != nil {
			return nil, err
		}
		return auditHTTP.NewLedgerHandler(ledger, sweep, c.Logger()), nil
	})
}

// AuditRetention returns AUDIT_RETENTION_DAYS as a duration.
func (c *Container) AuditRetention() time.Duration {
	return time.Duration(c.config.AuditRetentionDays) * 24 * time.Hour
}

// initLedgerUseCase assembles the ledger use case. Tamper alerts are written
// to the outbox in the same transaction as the tamper state, so the outbox
// repository is a dependency of the ledger and not the other way around.
func (c *Container) initLedgerUseCase() (auditUseCase.LedgerUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for ledger use case: %w", err)
	}
	entries, err := c.AuditEntryRepository()
	if err != nil {
		return nil, err
	}
	states, err := c.LedgerStateRepository()
	if err != nil {
		return nil, err
	}
	hasher, err := c.Hasher()
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger hasher: %w", err)
	}
	archiver, err := c.AuditArchiver()
	if err != nil {
		return nil, err
	}
	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for ledger use case: %w", err)
	}

	useCase := auditUseCase.NewLedgerUseCase(
		txManager,
		entries,
		states,
		hasher,
		auditService.NewOutboxNotifier(outboxRepo),
		archiver,
		c.Logger(),
		auditUseCase.LedgerConfig{
			MinRetention: time.Duration(config.MinAuditRetentionDays) * 24 * time.Hour,
		},
	)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for ledger use case: %w", err)
		}
		return auditUseCase.NewLedgerUseCaseWithMetrics(useCase, businessMetrics), nil
	}
	return useCase, nil
}
