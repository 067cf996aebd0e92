package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
)

// Sweeper runs one integrity pass over every tenant ledger.
type Sweeper interface {
	RunOnce(ctx context.Context) (*auditDomain.SweepResult, error)
}

// RunIntegritySweep verifies every tenant ledger once. Ledgers with new
// discrepancies are flagged and alerted. Returns an error when any ledger is
// flagged or could not be verified.
//
// Requirements: Database must be migrated and accessible; KMS is not needed.
func RunIntegritySweep(
	ctx context.Context,
	sweep Sweeper,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("running integrity sweep")

	result, err := sweep.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("failed to run integrity sweep: %w", err)
	}

	if format == formatJSON {
		if err := writeJSON(writer, result); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer, "Tenants:         %d\n", result.Tenants)
		_, _ = fmt.Fprintf(writer, "Clean:           %d\n", result.Clean)
		_, _ = fmt.Fprintf(writer, "Newly flagged:   %s\n", joinOrNone(result.Flagged))
		_, _ = fmt.Fprintf(writer, "Already flagged: %s\n", joinOrNone(result.AlreadyFlagged))
		_, _ = fmt.Fprintf(writer, "Failed:          %s\n", joinOrNone(result.Failed))
	}

	logger.Info("integrity sweep completed",
		slog.Int("tenants", result.Tenants),
		slog.Int("clean", result.Clean),
		slog.Int("flagged", len(result.Flagged)),
		slog.Int("already_flagged", len(result.AlreadyFlagged)),
		slog.Int("failed", len(result.Failed)),
	)

	if bad := len(result.Flagged) + len(result.AlreadyFlagged) + len(result.Failed); bad > 0 {
		return fmt.Errorf("integrity sweep found %d unhealthy ledger(s)", bad)
	}
	return nil
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
