package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	migrationDomain "github.com/allisson/casevault/internal/migration/domain"
	migrationUseCase "github.com/allisson/casevault/internal/migration/usecase"
)

// RunMigration re-encrypts every protected field of a tenant under newVersion.
// With initial set, legacy plaintext is encrypted under the active version and
// the version flags are ignored. Interrupted runs resume from their checkpoints.
//
// Requirements: Database must be migrated, MIGRATION_COLLECTIONS must be set and the KMS
// master key must be able to unwrap both versions.
func RunMigration(
	ctx context.Context,
	migrations migrationUseCase.MigrationUseCase,
	logger *slog.Logger,
	writer io.Writer,
	tenantID string,
	oldVersion, newVersion uint,
	initial bool,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	var (
		result *migrationDomain.Result
		err    error
	)
	if initial {
		logger.Info("starting initial encryption", slog.String("tenant_id", tenantID))
		result, err = migrations.RunInitialEncryption(ctx, tenantID)
	} else {
		if newVersion == 0 || oldVersion >= newVersion {
			return fmt.Errorf("new-version must be greater than old-version")
		}
		logger.Info("starting re-encryption",
			slog.String("tenant_id", tenantID),
			slog.Uint64("old_version", uint64(oldVersion)),
			slog.Uint64("new_version", uint64(newVersion)),
		)
		result, err = migrations.Run(ctx, tenantID, oldVersion, newVersion)
	}
	if err != nil && (result == nil || !errors.Is(err, context.Canceled)) {
		return fmt.Errorf("failed to run migration: %w", err)
	}

	if format == formatJSON {
		if jsonErr := writeJSON(writer, result); jsonErr != nil {
			return jsonErr
		}
	} else {
		outputMigrationText(writer, result)
	}

	processed, succeeded, failed, skipped := result.Totals()
	logger.Info("migration finished",
		slog.String("tenant_id", tenantID),
		slog.Int("processed", processed),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
		slog.Int("skipped", skipped),
		slog.Bool("canceled", result.Canceled),
	)

	if err != nil {
		return fmt.Errorf("migration interrupted, rerun to resume: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("migration completed with %d failed record(s)", failed)
	}
	return nil
}

func outputMigrationText(writer io.Writer, result *migrationDomain.Result) {
	_, _ = fmt.Fprintf(writer, "Tenant %s: version %d -> %d\n\n", result.TenantID, result.OldVersion, result.NewVersion)
	for _, c := range result.Collections {
		_, _ = fmt.Fprintf(writer, "%-20s processed=%d succeeded=%d failed=%d skipped=%d batches=%d",
			c.Collection, c.Processed, c.Succeeded, c.Failed, c.Skipped, c.Batches)
		if c.Resumed {
			_, _ = fmt.Fprintf(writer, " (resumed)")
		}
		_, _ = fmt.Fprintln(writer)
		for _, recordErr := range c.Errors {
			_, _ = fmt.Fprintf(writer, "  - %s.%s: %s\n", recordErr.RecordID, recordErr.Field, recordErr.Message)
		}
	}
	if result.Canceled {
		_, _ = fmt.Fprintf(writer, "\nCanceled before completion.\n")
	}
}
