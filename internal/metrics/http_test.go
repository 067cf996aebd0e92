package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	provider := newTestProvider(t, "cv_http")

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(provider.MeterProvider(), "cv_http"))
	router.GET("/v1/tenants/:tenant_id/keys", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant_id": c.Param("tenant_id")})
	})
	router.POST("/v1/tenants/:tenant_id/keys/rotate", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	for _, tenant := range []string{"tenant-a", "tenant-b", "tenant-c"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/tenants/"+tenant+"/keys", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/tenants/tenant-a/keys/rotate", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	output := scrape(t, provider)

	assertMetricLine(t, output, `cv_http_http_requests_total`,
		`method="GET".*route="/v1/tenants/:tenant_id/keys".*status_code="200"`, `3`)
	assertMetricLine(t, output, `cv_http_http_requests_total`,
		`method="POST".*route="/v1/tenants/:tenant_id/keys/rotate".*status_code="404"`, `1`)
	assertMetricLine(t, output, `cv_http_http_requests_total`, `route="unmatched"`, `1`)
	assertMetricLine(t, output, `cv_http_http_request_duration_seconds_count`,
		`route="/v1/tenants/:tenant_id/keys"`, `3`)
	assert.NotContains(t, output, "tenant-a")
	assertMetricLine(t, output, `cv_http_http_requests_in_flight`, ``, `0`)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/v1/tenants/:tenant_id/audit/verify", routeLabel("/v1/tenants/:tenant_id/audit/verify"))
	assert.Equal(t, "unmatched", routeLabel(""))
}
