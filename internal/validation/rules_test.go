package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/casevault/internal/errors"
)

func TestTenantID(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		shouldErr bool
	}{
		{name: "simple", value: "tenant-a"},
		{name: "with dots and colons", value: "org:acme.eu_1"},
		{name: "max length", value: strings.Repeat("a", 255)},
		{name: "too long", value: strings.Repeat("a", 256), shouldErr: true},
		{name: "leading hyphen", value: "-tenant", shouldErr: true},
		{name: "whitespace", value: "tenant a", shouldErr: true},
		{name: "slash", value: "tenant/a", shouldErr: true},
		{name: "empty is left to Required", value: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TenantID.Validate(tt.value)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWebhookURL(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		shouldErr bool
	}{
		{name: "https", value: "https://hooks.example.com/casevault"},
		{name: "http with port", value: "http://localhost:9000/alerts"},
		{name: "relative", value: "/alerts", shouldErr: true},
		{name: "other scheme", value: "ftp://example.com", shouldErr: true},
		{name: "no host", value: "https://", shouldErr: true},
		{name: "garbage", value: "://bad", shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WebhookURL.Validate(tt.value)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNoWhitespace(t *testing.T) {
	assert.NoError(t, NoWhitespace.Validate("value"))
	assert.NoError(t, NoWhitespace.Validate("inner space"))
	assert.Error(t, NoWhitespace.Validate(" value"))
	assert.Error(t, NoWhitespace.Validate("value\n"))
}

func TestNotBlank(t *testing.T) {
	assert.NoError(t, NotBlank.Validate("value"))
	assert.Error(t, NotBlank.Validate("   "))
	assert.Error(t, NotBlank.Validate("\t\n"))
}

func TestBase64Key(t *testing.T) {
	rule := Base64Key(6)
	assert.NoError(t, rule.Validate("c2VjcmV0"))
	assert.NoError(t, rule.Validate(""))
	assert.Error(t, rule.Validate("c2Vj"))
	assert.Error(t, rule.Validate("not base64!"))
	assert.Error(t, rule.Validate(42))
}

func TestWrapValidationError(t *testing.T) {
	assert.NoError(t, WrapValidationError(nil))

	err := WrapValidationError(errors.New("tenant_id: must be a valid tenant identifier"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "tenant_id")
}
