package httputil_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/allisson/casevault/internal/httputil"
)

func newQueryContext(url string) *gin.Context {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, url, nil)
	return c
}

func TestParseSequenceRange(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		url      string
		wantFrom uint64
		wantTo   uint64
		errorMsg string
	}{
		{name: "unbounded", url: "/"},
		{name: "from only", url: "/?from_seq=5", wantFrom: 5},
		{name: "both", url: "/?from_seq=5&to_seq=10", wantFrom: 5, wantTo: 10},
		{name: "single entry", url: "/?from_seq=7&to_seq=7", wantFrom: 7, wantTo: 7},
		{name: "negative", url: "/?from_seq=-1", errorMsg: "invalid from_seq parameter"},
		{name: "not a number", url: "/?to_seq=abc", errorMsg: "invalid to_seq parameter"},
		{name: "inverted", url: "/?from_seq=10&to_seq=5", errorMsg: "from_seq must not exceed to_seq"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := httputil.ParseSequenceRange(newQueryContext(tt.url))
			if tt.errorMsg != "" {
				assert.ErrorContains(t, err, tt.errorMsg)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantFrom, from)
			assert.Equal(t, tt.wantTo, to)
		})
	}
}

func TestParseLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		url       string
		want      int
		expectErr bool
	}{
		{name: "default", url: "/", want: httputil.DefaultLimit},
		{name: "custom", url: "/?limit=20", want: 20},
		{name: "max", url: "/?limit=500", want: 500},
		{name: "zero", url: "/?limit=0", expectErr: true},
		{name: "above max", url: "/?limit=501", expectErr: true},
		{name: "not a number", url: "/?limit=ten", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, err := httputil.ParseLimit(newQueryContext(tt.url))
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, limit)
		})
	}
}
