package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// createCORSMiddleware returns nil when CORS is disabled or allowOrigins names no origin.
// The ops API is meant for server-to-server use; enable CORS only for a browser console.
func createCORSMiddleware(enabled bool, allowOrigins string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	origins := parseOrigins(allowOrigins)
	if len(origins) == 0 {
		logger.Warn("cors enabled but no origins configured, skipping")
		return nil
	}

	logger.Info("cors enabled", slog.Any("origins", origins))

	return cors.New(corsConfig(origins))
}

// corsConfig allows the methods and headers the ops API uses and exposes the
// request id and Retry-After to the browser.
func corsConfig(origins []string) cors.Config {
	return cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders:  []string{"Content-Type", ActorHeader},
		ExposeHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
}

// parseOrigins splits a comma-separated origin list, dropping blanks and duplicates.
func parseOrigins(allowOrigins string) []string {
	var origins []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(allowOrigins, ",") {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
