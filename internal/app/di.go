// Package app provides the dependency injection container assembling casevault.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/allisson/casevault/internal/config"
	"github.com/allisson/casevault/internal/database"
	"github.com/allisson/casevault/internal/metrics"
)

// dbConnectTimeout bounds the startup wait for the database to accept connections.
const dbConnectTimeout = 30 * time.Second

// lazy holds a component built on first access. Initialization errors are
// remembered so every later call returns the same failure.
type lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

// get runs init once and returns its result on every call.
func (l *lazy[T]) get(init func() (T, error)) (T, error) {
	l.once.Do(func() {
		l.val, l.err = init()
	})
	return l.val, l.err
}

// Container holds all application dependencies. Components are created on
// first access and shared afterwards.
type Container struct {
	config *config.Config

	// ctx bounds background work owned by components (rate limiter cleanup).
	// It is canceled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	logger     lazy[*slog.Logger]
	db         lazy[*sql.DB]
	txManager  lazy[database.TxManager]
	provider   lazy[*metrics.Provider]
	bizMetrics lazy[metrics.BusinessMetrics]

	cryptoComponents
	auditComponents
	encryptionComponents
	migrationComponents
	outboxComponents
	serverComponents

	mu sync.Mutex
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	ctx, cancel := context.WithCancel(context.Background())
	return &Container{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the JSON logger configured from LOG_LEVEL.
func (c *Container) Logger() *slog.Logger {
	logger, _ := c.logger.get(func() (*slog.Logger, error) {
		return c.initLogger(), nil
	})
	return logger
}

// DB returns the database connection. The memory driver has none.
func (c *Container) DB() (*sql.DB, error) {
	return c.db.get(c.initDB)
}

// TxManager returns the transaction manager for the configured driver.
func (c *Container) TxManager() (database.TxManager, error) {
	return c.txManager.get(c.initTxManager)
}

// MetricsProvider returns the Prometheus-backed meter provider, or nil when
// metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	return c.provider.get(c.initMetricsProvider)
}

// BusinessMetrics returns the domain metrics recorder.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	return c.bizMetrics.get(c.initBusinessMetrics)
}

// isMemory reports whether DB_DRIVER selects the in-memory stores.
func (c *Container) isMemory() bool {
	return c.config.DBDriver == database.DriverMemory
}

// Shutdown releases every initialized resource in reverse dependency order.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()

	var errs []error
	if c.httpServer.val != nil {
		if err := c.httpServer.val.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
	}
	if c.metricsServer.val != nil {
		if err := c.metricsServer.val.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if c.keyCache.val != nil {
		c.keyCache.val.Purge()
	}
	if c.kmsKeeper.val != nil {
		if err := c.kmsKeeper.val.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kms keeper close: %w", err))
		}
	}
	if c.archiver.val != nil {
		if err := c.archiver.val.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit archive close: %w", err))
		}
	}
	if c.provider.val != nil {
		if err := c.provider.val.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}
	if c.db.val != nil {
		if err := c.db.val.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}

	return errors.Join(errs...)
}

// initLogger builds a JSON logger on stdout. Unknown LOG_LEVEL values fall
// back to info.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// initDB connects to DB_DRIVER with the pool settings from configuration,
// waiting up to dbConnectTimeout for the server. The memory driver returns a
// nil database.
func (c *Container) initDB() (*sql.DB, error) {
	if c.isMemory() {
		return nil, nil
	}
	db, err := database.Connect(c.ctx, database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		ConnectTimeout:     dbConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager returns a transaction manager over the database, or a local
// one for the memory driver.
func (c *Container) initTxManager() (database.TxManager, error) {
	if c.isMemory() {
		return database.NewLocalTxManager(), nil
	}
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initMetricsProvider returns nil when METRICS_ENABLED is false.
func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	provider, err := metrics.NewProvider(c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// sqlRepository picks the repository matching the configured driver.
func sqlRepository[T any](c *Container, name string, memory func() T, postgres, mysql func(*sql.DB) T) (T, error) {
	var zero T
	if c.isMemory() {
		return memory(), nil
	}
	db, err := c.DB()
	if err != nil {
		return zero, fmt.Errorf("failed to get database for %s: %w", name, err)
	}
	switch c.config.DBDriver {
	case database.DriverPostgres:
		return postgres(db), nil
	case database.DriverMySQL:
		return mysql(db), nil
	default:
		return zero, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}
