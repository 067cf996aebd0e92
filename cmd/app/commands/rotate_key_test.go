package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
)

func TestRunRotateKey(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	result := &cryptoDomain.RotationResult{
		TenantID:   "tenant-a",
		OldVersion: 1,
		NewVersion: 2,
		RotatedAt:  time.Now().UTC(),
	}

	t.Run("success-text", func(t *testing.T) {
		keys := &mockKeyRotator{}
		keys.On("RotateKey", ctx, "tenant-a").Return(result, nil)

		var out bytes.Buffer
		err := RunRotateKey(ctx, keys, logger, &out, "tenant-a", "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "version 1 -> 2")
		require.Contains(t, out.String(), "--old-version 1 --new-version 2")
		keys.AssertExpectations(t)
	})

	t.Run("success-json", func(t *testing.T) {
		keys := &mockKeyRotator{}
		keys.On("RotateKey", ctx, "tenant-a").Return(result, nil)

		var out bytes.Buffer
		err := RunRotateKey(ctx, keys, logger, &out, "tenant-a", "json")
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		require.Equal(t, float64(2), decoded["new_version"])
	})

	t.Run("no-active-key", func(t *testing.T) {
		keys := &mockKeyRotator{}
		keys.On("RotateKey", ctx, "tenant-a").Return(nil, cryptoDomain.ErrKeyNotFound)

		var out bytes.Buffer
		err := RunRotateKey(ctx, keys, logger, &out, "tenant-a", "text")
		require.ErrorIs(t, err, cryptoDomain.ErrKeyNotFound)
		require.Empty(t, out.String())
	})

	t.Run("invalid-format", func(t *testing.T) {
		err := RunRotateKey(ctx, nil, logger, nil, "tenant-a", "yaml")
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid format")
	})
}
