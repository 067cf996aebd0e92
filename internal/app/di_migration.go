package app

import (
	"database/sql"
	"fmt"

	"github.com/allisson/casevault/internal/config"
	"github.com/allisson/casevault/internal/database"
	migrationHTTP "github.com/allisson/casevault/internal/migration/http"
	migrationRepository "github.com/allisson/casevault/internal/migration/repository"
	migrationUseCase "github.com/allisson/casevault/internal/migration/usecase"
)

// migrationComponents holds the re-encryption engine and the record
// collections it walks.
type migrationComponents struct {
	collections      lazy[[]migrationUseCase.RecordCollection]
	checkpointRepo   lazy[migrationUseCase.CheckpointRepository]
	migrationUseCase lazy[migrationUseCase.MigrationUseCase]
	migrationHandler lazy[*migrationHTTP.MigrationHandler]
}

// RecordCollections returns the collections listed in MIGRATION_COLLECTIONS,
// in configuration order.
func (c *Container) RecordCollections() ([]migrationUseCase.RecordCollection, error) {
	return c.collections.get(c.initRecordCollections)
}

// CheckpointRepository returns the migration checkpoint store for the configured driver.
func (c *Container) CheckpointRepository() (migrationUseCase.CheckpointRepository, error) {
	return c.checkpointRepo.get(func() (migrationUseCase.CheckpointRepository, error) {
		return sqlRepository(c, "checkpoint repository",
			func() migrationUseCase.CheckpointRepository {
				return migrationRepository.NewMemoryCheckpointRepository()
			},
			func(db *sql.DB) migrationUseCase.CheckpointRepository {
				return migrationRepository.NewPostgreSQLCheckpointRepository(db)
			},
			func(db *sql.DB) migrationUseCase.CheckpointRepository {
				return migrationRepository.NewMySQLCheckpointRepository(db)
			},
		)
	})
}

// MigrationUseCase returns the re-encryption engine.
func (c *Container) MigrationUseCase() (migrationUseCase.MigrationUseCase, error) {
	return c.migrationUseCase.get(c.initMigrationUseCase)
}

// MigrationHandler returns the HTTP handler starting migrations.
func (c *Container) MigrationHandler() (*migrationHTTP.MigrationHandler, error) {
	return c.migrationHandler.get(func() (*migrationHTTP.MigrationHandler, error) {
		useCase, err := c.MigrationUseCase()
		if err != nil {
			return nil, err
		}
		return migrationHTTP.NewMigrationHandler(useCase, c.Logger()), nil
	})
}

// initRecordCollections parses MIGRATION_COLLECTIONS and opens one collection
// per entry. An empty setting yields no collections.
func (c *Container) initRecordCollections() ([]migrationUseCase.RecordCollection, error) {
	entries, err := config.ParseMigrationCollections(c.config.MigrationCollections)
	if err != nil {
		return nil, err
	}

	collections := make([]migrationUseCase.RecordCollection, 0, len(entries))
	for _, entry := range entries {
		collection, err := c.newRecordCollection(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to configure collection %s: %w", entry.Table, err)
		}
		collections = append(collections, collection)
	}
	return collections, nil
}

// newRecordCollection opens a collection for the configured driver. The memory
// driver ignores the column mapping and stores records by ID.
func (c *Container) newRecordCollection(entry config.MigrationCollection) (migrationUseCase.RecordCollection, error) {
	if c.isMemory() {
		return migrationRepository.NewMemoryRecordCollection(entry.Table), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	cfg := migrationRepository.SQLCollectionConfig{
		Table:        entry.Table,
		IDColumn:     entry.IDColumn,
		TenantColumn: entry.TenantColumn,
		Fields:       entry.Fields,
	}
	switch c.config.DBDriver {
	case database.DriverPostgres:
		return migrationRepository.NewPostgreSQLRecordCollection(db, cfg)
	case database.DriverMySQL:
		return migrationRepository.NewMySQLRecordCollection(db, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initMigrationUseCase assembles the migration engine. Runs are recorded in
// the audit ledger and decrypt through the encryption use case.
func (c *Container) initMigrationUseCase() (migrationUseCase.MigrationUseCase, error) {
	collections, err := c.RecordCollections()
	if err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		c.Logger().Warn("MIGRATION_COLLECTIONS is empty, migrations will process no records")
	}
	checkpoints, err := c.CheckpointRepository()
	if err != nil {
		return nil, err
	}
	encryption, err := c.EncryptionUseCase()
	if err != nil {
		return nil, err
	}
	keys, err := c.TenantKeyUseCase()
	if err != nil {
		return nil, err
	}
	ledger, err := c.LedgerUseCase()
	if err != nil {
		return nil, err
	}

	useCase := migrationUseCase.NewMigrationUseCase(
		collections,
		checkpoints,
		encryption,
		keys,
		ledger,
		c.Logger(),
		migrationUseCase.MigrationConfig{BatchSize: c.config.MigrationBatchSize},
	)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for migration use case: %w", err)
		}
		return migrationUseCase.NewMigrationUseCaseWithMetrics(useCase, businessMetrics), nil
	}
	return useCase, nil
}
