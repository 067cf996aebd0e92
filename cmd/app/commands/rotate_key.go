package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
)

// KeyRotator rotates tenant DEKs.
type KeyRotator interface {
	RotateKey(ctx context.Context, tenantID string) (*cryptoDomain.RotationResult, error)
}

// RunRotateKey creates the next DEK version of a tenant and retires the current one.
// Records encrypted under the old version stay readable; run-migration moves them.
//
// Requirements: Database must be migrated and the KMS master key must be enabled.
func RunRotateKey(
	ctx context.Context,
	keys KeyRotator,
	logger *slog.Logger,
	writer io.Writer,
	tenantID string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("rotating tenant key", slog.String("tenant_id", tenantID))

	result, err := keys.RotateKey(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to rotate key: %w", err)
	}

	logger.Info("tenant key rotated",
		slog.String("tenant_id", result.TenantID),
		slog.Uint64("old_version", uint64(result.OldVersion)),
		slog.Uint64("new_version", uint64(result.NewVersion)),
	)

	if format == formatJSON {
		return writeJSON(writer, result)
	}
	_, _ = fmt.Fprintf(writer, "Rotated key for tenant %s: version %d -> %d\n",
		result.TenantID, result.OldVersion, result.NewVersion)
	_, _ = fmt.Fprintf(writer, "Run: app run-migration --tenant-id %s --old-version %d --new-version %d\n",
		result.TenantID, result.OldVersion, result.NewVersion)
	return nil
}
