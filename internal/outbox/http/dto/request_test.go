package dto

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutTenantWebhookRequest_Validate(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("s", 32)))

	tests := []struct {
		name      string
		request   PutTenantWebhookRequest
		shouldErr bool
		errMsg    string
	}{
		{name: "valid", request: PutTenantWebhookRequest{URL: "https://hooks.example.com/a", Secret: secret}},
		{name: "missing url", request: PutTenantWebhookRequest{Secret: secret}, shouldErr: true, errMsg: "url"},
		{name: "relative url", request: PutTenantWebhookRequest{URL: "/hook", Secret: secret}, shouldErr: true, errMsg: "url"},
		{name: "missing secret", request: PutTenantWebhookRequest{URL: "https://hooks.example.com/a"}, shouldErr: true, errMsg: "secret"},
		{
			name:      "secret not base64",
			request:   PutTenantWebhookRequest{URL: "https://hooks.example.com/a", Secret: "not base64!"},
			shouldErr: true,
			errMsg:    "base64",
		},
		{
			name:      "short secret",
			request:   PutTenantWebhookRequest{URL: "https://hooks.example.com/a", Secret: base64.StdEncoding.EncodeToString([]byte("short"))},
			shouldErr: true,
			errMsg:    "at least 16 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.shouldErr {
				assert.ErrorContains(t, err, tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPutTenantWebhookRequest_ToDomain(t *testing.T) {
	now := time.Now().UTC()
	secret := []byte(strings.Repeat("k", 32))
	disabled := false

	t.Run("Success_DefaultsToEnabled", func(t *testing.T) {
		req := PutTenantWebhookRequest{URL: "https://hooks.example.com/a", Secret: base64.StdEncoding.EncodeToString(secret)}

		w, err := req.ToDomain("tenant-a", now)
		require.NoError(t, err)
		assert.Equal(t, "tenant-a", w.TenantID)
		assert.Equal(t, secret, w.Secret)
		assert.True(t, w.Enabled)
		assert.Equal(t, now, w.CreatedAt)
	})

	t.Run("Success_Disabled", func(t *testing.T) {
		req := PutTenantWebhookRequest{
			URL:     "https://hooks.example.com/a",
			Secret:  base64.StdEncoding.EncodeToString(secret),
			Enabled: &disabled,
		}

		w, err := req.ToDomain("tenant-a", now)
		require.NoError(t, err)
		assert.False(t, w.Enabled)
	})
}
