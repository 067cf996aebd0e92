package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/allisson/casevault/internal/database"
)

// RunMigrations brings the schema of driver up to date. The memory driver has
// no schema and is a no-op.
//
// Requirements: DB_CONNECTION_STRING must point at a reachable database.
func RunMigrations(logger *slog.Logger, driver, connectionString string) (err error) {
	if driver == database.DriverMemory {
		logger.Info("schema migrations skipped", slog.String("driver", driver))
		return nil
	}

	source, err := database.MigrationsSource(driver)
	if err != nil {
		return err
	}

	m, err := migrate.New(source, connectionString)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			err = errors.Join(err, fmt.Errorf("close migrate: %w", errors.Join(srcErr, dbErr)))
		}
	}()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("schema already up to date", slog.String("driver", driver))
		return nil
	case err != nil:
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("schema migrated",
		slog.String("driver", driver),
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}
