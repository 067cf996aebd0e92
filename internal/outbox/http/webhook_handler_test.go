package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/casevault/internal/outbox/http/dto"
	"github.com/allisson/casevault/internal/outbox/repository"
)

func setupTestWebhookHandler(t *testing.T) (*WebhookHandler, *repository.MemoryTenantWebhookRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryTenantWebhookRepository()
	return NewWebhookHandler(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func createTestContext(method, tenantID, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/v1/tenants/"+tenantID+"/webhook", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "tenant_id", Value: tenantID}}
	return c, w
}

func TestWebhookHandler_PutHandler(t *testing.T) {
	secret := []byte(strings.Repeat("k", 32))
	encoded := base64.StdEncoding.EncodeToString(secret)

	t.Run("Success", func(t *testing.T) {
		handler, repo := setupTestWebhookHandler(t)

		c, w := createTestContext(http.MethodPut, "tenant-a",
			`{"url":"https://hooks.example.com/a","secret":"`+encoded+`"}`)
		handler.PutHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), encoded)
		var response dto.TenantWebhookResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "https://hooks.example.com/a", response.URL)
		assert.True(t, response.Enabled)

		stored, err := repo.Get(context.Background(), "tenant-a")
		require.NoError(t, err)
		assert.Equal(t, secret, stored.Secret)
	})

	t.Run("Error_Validation", func(t *testing.T) {
		handler, _ := setupTestWebhookHandler(t)

		c, w := createTestContext(http.MethodPut, "tenant-a", `{"url":"ftp://example.com","secret":"`+encoded+`"}`)
		handler.PutHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_MalformedJSON", func(t *testing.T) {
		handler, _ := setupTestWebhookHandler(t)

		c, w := createTestContext(http.MethodPut, "tenant-a", `{"url":`)
		handler.PutHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWebhookHandler_GetHandler(t *testing.T) {
	t.Run("Error_NotFound", func(t *testing.T) {
		handler, _ := setupTestWebhookHandler(t)

		c, w := createTestContext(http.MethodGet, "tenant-a", "")
		handler.GetHandler(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Success", func(t *testing.T) {
		handler, _ := setupTestWebhookHandler(t)
		encoded := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

		c, _ := createTestContext(http.MethodPut, "tenant-a",
			`{"url":"https://hooks.example.com/a","secret":"`+encoded+`","enabled":false}`)
		handler.PutHandler(c)

		c, w := createTestContext(http.MethodGet, "tenant-a", "")
		handler.GetHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.TenantWebhookResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.False(t, response.Enabled)
	})
}
