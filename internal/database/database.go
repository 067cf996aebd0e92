// Package database opens the SQL connection pool and runs repository work
// inside transactions.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Supported values of DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	// DriverMemory selects the in-memory repositories. No SQL connection is opened.
	DriverMemory = "memory"
)

// Config holds database configuration settings.
type Config struct {
	Driver             string
	ConnectionString   string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	// ConnectTimeout bounds the ping retries made while the server comes up.
	// Zero pings once.
	ConnectTimeout time.Duration
}

// Connect opens the pool and pings it until it answers or ConnectTimeout elapses.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverMySQL:
	case DriverMemory:
		return nil, fmt.Errorf("driver %q has no sql connection", DriverMemory)
	}

	db, err := sql.Open(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if cfg.ConnectTimeout > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 100 * time.Millisecond
		exp.MaxElapsedTime = cfg.ConnectTimeout
		policy = exp
	}

	if err := backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// MigrationsSource returns the golang-migrate source URL holding the schema of driver.
func MigrationsSource(driver string) (string, error) {
	switch driver {
	case DriverPostgres:
		return "file://migrations/postgresql", nil
	case DriverMySQL:
		return "file://migrations/mysql", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}
