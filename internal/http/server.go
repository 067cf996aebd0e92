// Package http provides the ops API server, its router and shared middleware.
//
// # Routes
//
// The API is mounted under /v1/tenants/:tenant_id and exposes key rotation and
// listing, ledger verification and inspection, migration runs and the tenant
// webhook. /health and /ready sit outside /v1 and are never rate limited.
//
// # Middleware
//
// Every request gets a UUIDv7 request id, a structured log line and, when
// metrics are enabled, route-labelled instruments. The /v1 group adds per-IP
// rate limiting and reads the operator from ActorHeader for audit entries.
//
// # Usage Example
//
//	server := http.NewServer("0.0.0.0", 8080, logger, checks...)
//	server.SetupRouter(ctx, http.RouterConfig{RateLimitEnabled: true}, handlers)
//	if err := server.Start(ctx); err != nil {
//		logger.Error("server stopped", slog.Any("error", err))
//	}
//
// Package http provides the ops API server, its router and shared middleware.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	auditHTTP "github.com/allisson/casevault/internal/audit/http"
	cryptoHTTP "github.com/allisson/casevault/internal/crypto/http"
	"github.com/allisson/casevault/internal/metrics"
	migrationHTTP "github.com/allisson/casevault/internal/migration/http"
	outboxHTTP "github.com/allisson/casevault/internal/outbox/http"
)

// ReadinessCheck is a named dependency checked by the /ready endpoint.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterConfig holds the cross-cutting options applied to the router.
type RouterConfig struct {
	CORSEnabled      bool
	CORSAllowOrigins string

	RateLimitEnabled        bool
	RateLimitRequestsPerSec float64
	RateLimitBurst          int

	// MeterProvider enables HTTP request metrics when non-nil.
	MeterProvider    metric.MeterProvider
	MetricsNamespace string
}

// Handlers groups the per-domain handlers mounted under /v1/tenants/:tenant_id.
type Handlers struct {
	Keys       *cryptoHTTP.KeyHandler
	Ledger     *auditHTTP.LedgerHandler
	Migrations *migrationHTTP.MigrationHandler
	Webhooks   *outboxHTTP.WebhookHandler
}

// Server represents the ops API HTTP server.
type Server struct {
	server *http.Server
	router *gin.Engine
	checks []ReadinessCheck
	logger *slog.Logger
}

// NewServer creates a new HTTP server. The router is built by SetupRouter.
func NewServer(host string, port int, logger *slog.Logger, checks ...ReadinessCheck) *Server {
	return &Server{
		logger: logger.With(slog.String("listener", "api")),
		checks: checks,
		server: newHTTPServer(host, port, nil, 60*time.Second),
	}
}

// SetupRouter builds the gin engine with middleware and all routes.
// ctx bounds background work started by middleware.
//
// Handlers left nil are not mounted, so tests can build a router with one
// domain only.
func (s *Server) SetupRouter(ctx context.Context, cfg RouterConfig, h Handlers) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}
	if cfg.MeterProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(cfg.MeterProvider, cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	if cfg.RateLimitEnabled {
		v1.Use(RateLimitMiddleware(ctx, cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger))
	}
	v1.Use(ActorMiddleware())

	tenant := v1.Group("/tenants/:tenant_id")
	if h.Keys != nil {
		tenant.GET("/keys", h.Keys.ListHandler)
		tenant.POST("/keys/rotate", h.Keys.RotateHandler)
	}
	if h.Ledger != nil {
		tenant.GET("/audit/verify", h.Ledger.VerifyHandler)
		tenant.GET("/audit/state", h.Ledger.StateHandler)
		tenant.GET("/audit/entries", h.Ledger.ListEntriesHandler)
	}
	if h.Migrations != nil {
		tenant.POST("/migrations", h.Migrations.RunHandler)
		tenant.POST("/migrations/initial", h.Migrations.InitialEncryptionHandler)
	}
	if h.Webhooks != nil {
		tenant.GET("/webhook", h.Webhooks.GetHandler)
		tenant.PUT("/webhook", h.Webhooks.PutHandler)
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server. SetupRouter must be called first.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router not configured")
	}
	s.server.Handler = s.router
	return listenAndServe(s.server, s.logger)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http listener shutting down")
	return s.server.Shutdown(ctx)
}

// healthHandler reports liveness. It checks nothing.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler runs every readiness check with a short deadline.
func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	ready := true
	components := make(map[string]string, len(s.checks))
	for _, check := range s.checks {
		if err := check.Check(ctx); err != nil {
			s.logger.Warn("readiness check failed",
				slog.String("component", check.Name),
				slog.Any("error", err))
			components[check.Name] = "error"
			ready = false
			continue
		}
		components[check.Name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
