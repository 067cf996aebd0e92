package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/casevault/internal/metrics"
)

// MetricsServer serves the Prometheus scrape endpoint on a port of its own,
// keeping /metrics off the ops API listener.
type MetricsServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewMetricsServer builds the scrape server. With a nil provider only /health
// is mounted.
func NewMetricsServer(host string, port int, logger *slog.Logger, provider *metrics.Provider) *MetricsServer {
	router := gin.New()
	router.Use(gin.Recovery(), CustomLoggerMiddleware(logger))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if provider != nil {
		router.GET("/metrics", gin.WrapH(provider.Handler()))
	}

	return &MetricsServer{
		server: newHTTPServer(host, port, router, 15*time.Second),
		logger: logger.With(slog.String("listener", "metrics")),
	}
}

// GetHandler exposes the router for tests.
func (s *MetricsServer) GetHandler() http.Handler {
	return s.server.Handler
}

func (s *MetricsServer) Start(ctx context.Context) error {
	return listenAndServe(s.server, s.logger)
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("http listener shutting down")
	return s.server.Shutdown(ctx)
}

func newHTTPServer(host string, port int, handler http.Handler, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

// listenAndServe blocks until the server fails or is shut down. A shutdown is
// not an error.
func listenAndServe(server *http.Server, logger *slog.Logger) error {
	logger.Info("http listener started", slog.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", server.Addr, err)
	}
	return nil
}
