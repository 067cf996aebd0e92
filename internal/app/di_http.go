package app

import (
	"context"
	"fmt"

	"github.com/allisson/casevault/internal/http"
)

// serverComponents holds the ops API server and the Prometheus scrape server.
type serverComponents struct {
	httpServer    lazy[*http.Server]
	metricsServer lazy[*http.MetricsServer]
}

// HTTPServer returns the ops API server with every route mounted.
func (c *Container) HTTPServer() (*http.Server, error) {
	return c.httpServer.get(c.initHTTPServer)
}

// MetricsServer returns the Prometheus scrape server.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	return c.metricsServer.get(func() (*http.MetricsServer, error) {
		provider, err := c.MetricsProvider()
		if err != nil {
			return nil, err
		}
		return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
	})
}

// ReadinessChecks returns the dependencies checked by /ready.
func (c *Container) ReadinessChecks() ([]http.ReadinessCheck, error) {
	keys, err := c.TenantKeyUseCase()
	if err != nil {
		return nil, err
	}

	checks := []http.ReadinessCheck{{
		Name: "kms",
		Check: func(ctx context.Context) error {
			_, err := keys.HealthCheck(ctx)
			return err
		},
	}}

	if !c.isMemory() {
		db, err := c.DB()
		if err != nil {
			return nil, err
		}
		checks = append(checks, http.ReadinessCheck{Name: "database", Check: db.PingContext})
	}
	return checks, nil
}

// initHTTPServer mounts every handler on the ops API router. Any handler that
// fails to build fails the server.
func (c *Container) initHTTPServer() (*http.Server, error) {
	checks, err := c.ReadinessChecks()
	if err != nil {
		return nil, fmt.Errorf("failed to build readiness checks: %w", err)
	}

	var handlers http.Handlers
	if handlers.Keys, err = c.KeyHandler(); err != nil {
		return nil, err
	}
	if handlers.Ledger, err = c.LedgerHandler(); err != nil {
		return nil, err
	}
	if handlers.Migrations, err = c.MigrationHandler(); err != nil {
		return nil, err
	}
	if handlers.Webhooks, err = c.WebhookHandler(); err != nil {
		return nil, err
	}

	routerConfig := http.RouterConfig{
		CORSEnabled:             c.config.CORSEnabled,
		CORSAllowOrigins:        c.config.CORSAllowOrigins,
		RateLimitEnabled:        c.config.RateLimitEnabled,
		RateLimitRequestsPerSec: c.config.RateLimitRequestsPerSec,
		RateLimitBurst:          c.config.RateLimitBurst,
		MetricsNamespace:        c.config.MetricsNamespace,
	}
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider != nil {
		routerConfig.MeterProvider = provider.MeterProvider()
	}

	server := http.NewServer(c.config.ServerHost, c.config.ServerPort, c.Logger(), checks...)
	server.SetupRouter(c.ctx, routerConfig, handlers)
	return server, nil
}
