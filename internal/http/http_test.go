package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	"github.com/allisson/casevault/internal/metrics"
	outboxHTTP "github.com/allisson/casevault/internal/outbox/http"
	outboxRepository "github.com/allisson/casevault/internal/outbox/repository"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okCheck(name string) ReadinessCheck {
	return ReadinessCheck{Name: name, Check: func(ctx context.Context) error { return nil }}
}

func failingCheck(name string) ReadinessCheck {
	return ReadinessCheck{Name: name, Check: func(ctx context.Context) error { return errors.New("down") }}
}

func newTestServer(t *testing.T, cfg RouterConfig, h Handlers, checks ...ReadinessCheck) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	server := NewServer("localhost", 0, discardLogger(), checks...)
	server.SetupRouter(ctx, cfg, h)
	return server
}

func serve(server *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	server.GetHandler().ServeHTTP(w, req)
	return w
}

func TestServer_HealthEndpoint(t *testing.T) {
	server := newTestServer(t, RouterConfig{}, Handlers{})

	w := serve(server, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestServer_ReadyEndpoint(t *testing.T) {
	t.Run("Ready", func(t *testing.T) {
		server := newTestServer(t, RouterConfig{}, Handlers{}, okCheck("database"), okCheck("kms"))

		w := serve(server, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "ready", response["status"])
		assert.Equal(t, map[string]any{"database": "ok", "kms": "ok"}, response["components"])
	})

	t.Run("NotReady", func(t *testing.T) {
		server := newTestServer(t, RouterConfig{}, Handlers{}, okCheck("database"), failingCheck("kms"))

		w := serve(server, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var response map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "not_ready", response["status"])
		assert.Equal(t, map[string]any{"database": "ok", "kms": "error"}, response["components"])
	})
}

func TestServer_RequestIDHeader(t *testing.T) {
	server := newTestServer(t, RouterConfig{}, Handlers{})

	w := serve(server, httptest.NewRequest(http.MethodGet, "/health", nil))

	parsed, err := uuid.Parse(w.Header().Get("X-Request-Id"))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestServer_TenantRoutes(t *testing.T) {
	webhooks := outboxHTTP.NewWebhookHandler(outboxRepository.NewMemoryTenantWebhookRepository(), discardLogger())
	server := newTestServer(t, RouterConfig{}, Handlers{Webhooks: webhooks})

	secret := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	req := httptest.NewRequest(http.MethodPut, "/v1/tenants/tenant-a/webhook",
		strings.NewReader(`{"url":"https://hooks.example.com/a","secret":"`+secret+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(server, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(server, httptest.NewRequest(http.MethodGet, "/v1/tenants/tenant-a/webhook", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(server, httptest.NewRequest(http.MethodGet, "/v1/tenants/bad%20id/webhook", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Handlers left nil are not mounted.
	w = serve(server, httptest.NewRequest(http.MethodGet, "/v1/tenants/tenant-a/keys", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_NoMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, RouterConfig{}, Handlers{})

	w := serve(server, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_StartWithoutRouter(t *testing.T) {
	server := NewServer("localhost", 0, discardLogger())

	assert.Error(t, server.Start(context.Background()))
}

func TestServer_ShutdownGracefully(t *testing.T) {
	server := newTestServer(t, RouterConfig{}, Handlers{})

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(context.Background())
	}()
	time.Sleep(100 * time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(shutdownCtx))

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestActorMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(ActorMiddleware())
	router.GET("/actor", func(c *gin.Context) {
		c.String(http.StatusOK, auditDomain.ActorFromContext(c.Request.Context()))
	})

	t.Run("HeaderPresent", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/actor", nil)
		req.Header.Set(ActorHeader, "ops@example.com")
		router.ServeHTTP(w, req)

		assert.Equal(t, "ops@example.com", w.Body.String())
	})

	t.Run("HeaderMissing", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/actor", nil))

		assert.Equal(t, auditDomain.SystemActor, w.Body.String())
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := gin.New()
	router.Use(RateLimitMiddleware(ctx, 1, 2, discardLogger()))
	router.GET("/limited", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := func(remoteAddr string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/limited", nil)
		req.RemoteAddr = remoteAddr
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, request("10.0.0.1:1234").Code)

	w := request("10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Each client IP has its own bucket.
	assert.Equal(t, http.StatusOK, request("10.0.0.2:1234").Code)
}

func TestRateLimiterStore_EvictIdle(t *testing.T) {
	store := &rateLimiterStore{rps: 1, burst: 1}
	store.getLimiter("10.0.0.1")

	store.evictIdle(time.Now().Add(-time.Hour))
	_, ok := store.limiters.Load("10.0.0.1")
	assert.True(t, ok)

	store.evictIdle(time.Now().Add(time.Second))
	_, ok = store.limiters.Load("10.0.0.1")
	assert.False(t, ok)
}

func TestCustomLoggerMiddleware_Recovery(t *testing.T) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CustomLoggerMiddleware(discardLogger()))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsServer_Endpoints(t *testing.T) {
	provider, err := metrics.NewProvider("casevault_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	metricsServer := NewMetricsServer("localhost", 0, discardLogger(), provider)

	w := httptest.NewRecorder()
	metricsServer.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	w = httptest.NewRecorder()
	metricsServer.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsServer_NilProvider(t *testing.T) {
	metricsServer := NewMetricsServer("localhost", 0, discardLogger(), nil)

	w := httptest.NewRecorder()
	metricsServer.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
