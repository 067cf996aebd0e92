package commands

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	t.Run("Success_MemoryDriverIsNoOp", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))

		require.NoError(t, RunMigrations(logger, "memory", ""))
		assert.Contains(t, logs.String(), "schema migrations skipped")
	})

	t.Run("Error_UnknownDriver", func(t *testing.T) {
		err := RunMigrations(discardLogger(), "sqlite", "file::memory:")
		assert.ErrorContains(t, err, "unsupported database driver")
	})

	t.Run("Error_MalformedDSN", func(t *testing.T) {
		err := RunMigrations(discardLogger(), "postgres", "invalid-connection-string")
		assert.ErrorContains(t, err, "failed to create migrate instance")
	})
}
