package usecase

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
)

// SweepConfig holds integrity sweep configuration.
//
// Interval is the time between sweeps. Concurrency bounds how many tenant
// ledgers are verified at once; values below one are raised to one.
type SweepConfig struct {
	Interval    time.Duration
	Concurrency int
}

// IntegritySweep periodically verifies every tenant ledger and triggers the
// tamper response for newly detected discrepancies.
//
// A ledger that is already flagged at or before the first discrepancy found is
// not flagged again, so a damaged ledger raises one alert and not one per sweep.
// A flagged ledger still accepts appends; the sweep keeps verifying it so an
// earlier break found later is still reported.
type IntegritySweep struct {
	config SweepConfig
	ledger LedgerUseCase
	logger *slog.Logger
}

// NewIntegritySweep creates a new IntegritySweep.
func NewIntegritySweep(config SweepConfig, ledger LedgerUseCase, logger *slog.Logger) *IntegritySweep {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &IntegritySweep{config: config, ledger: ledger, logger: logger}
}

// Start runs a sweep every interval until ctx is canceled.
func (s *IntegritySweep) Start(ctx context.Context) error {
	s.logger.Info("starting audit integrity sweep",
		slog.Duration("interval", s.config.Interval),
		slog.Int("concurrency", s.config.Concurrency),
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping audit integrity sweep")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("audit integrity sweep failed", slog.Any("error", err))
			}
		}
	}
}

// RunOnce verifies every tenant ledger once. A failure on one tenant is
// recorded in the result and does not stop the others.
//
// Parameters:
//   - ctx: Bounds the whole sweep; cancellation discards the partial result
//
// Returns:
//   - The per-tenant outcome, with tenant lists sorted
//   - An error when tenants cannot be listed or ctx is canceled
func (s *IntegritySweep) RunOnce(ctx context.Context) (*auditDomain.SweepResult, error) {
	result := &auditDomain.SweepResult{StartedAt: time.Now().UTC()}

	tenants, err := s.ledger.Tenants(ctx)
	if err != nil {
		return nil, err
	}
	result.Tenants = len(tenants)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, tenantID := range tenants {
		g.Go(func() error {
			outcome, err := s.sweepTenant(gctx, tenantID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				s.logger.Error("failed to sweep tenant ledger",
					slog.String("tenant_id", tenantID),
					slog.Any("error", err),
				)
				result.Failed = append(result.Failed, tenantID)
			case outcome == sweepClean:
				result.Clean++
			case outcome == sweepAlreadyFlagged:
				result.AlreadyFlagged = append(result.AlreadyFlagged, tenantID)
			default:
				result.Flagged = append(result.Flagged, tenantID)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.Sort(result.Flagged)
	slices.Sort(result.AlreadyFlagged)
	slices.Sort(result.Failed)
	result.FinishedAt = time.Now().UTC()

	s.logger.Info("audit integrity sweep completed",
		slog.Int("tenants", result.Tenants),
		slog.Int("clean", result.Clean),
		slog.Int("flagged", len(result.Flagged)),
		slog.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// sweepOutcome classifies one tenant in a sweep.
type sweepOutcome int

const (
	sweepClean sweepOutcome = iota
	sweepFlagged
	sweepAlreadyFlagged
)

// sweepTenant verifies the whole ledger of one tenant and classifies the result.
func (s *IntegritySweep) sweepTenant(ctx context.Context, tenantID string) (sweepOutcome, error) {
	report, err := s.VerifyTenant(ctx, tenantID, auditDomain.Range{})
	if err != nil {
		return 0, err
	}
	switch {
	case report.Clean():
		return sweepClean, nil
	case report.Flagged:
		return sweepFlagged, nil
	default:
		return sweepAlreadyFlagged, nil
	}
}

// VerifyTenant verifies rng of the tenant ledger and runs the tamper response
// when it finds a discrepancy the ledger state does not already cover.
// Flagged is set on the report only when this call flagged the ledger.
//
// Parameters:
//   - ctx: Carries cancellation and any transaction
//   - tenantID: The ledger to verify
//   - rng: The sequence range; the zero Range verifies the whole ledger
//
// Returns:
//   - The verification report with the tamper response outcome
//   - An error when verification or the tamper response fails
func (s *IntegritySweep) VerifyTenant(
	ctx context.Context,
	tenantID string,
	rng auditDomain.Range,
) (*TenantVerification, error) {
	report, err := s.ledger.VerifyChain(ctx, tenantID, rng)
	if err != nil {
		return nil, err
	}
	result := &TenantVerification{VerificationReport: report}

	first, ok := report.FirstDiscrepancy()
	if !ok {
		return result, nil
	}

	state, err := s.ledger.State(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if state.Flagged() && state.FirstBadSequence <= first.Sequence {
		result.State = state
		return result, nil
	}

	state, err = s.ledger.OnTamperDetected(ctx, tenantID, first.EntryID, first.Kind)
	if err != nil {
		return nil, err
	}
	result.State = state
	result.Flagged = true
	return result, nil
}

// TenantVerification is a VerificationReport plus the tamper response it triggered.
type TenantVerification struct {
	*auditDomain.VerificationReport
	// Flagged is true when this verification flagged the ledger.
	Flagged bool `json:"flagged"`
	// State is the ledger state after the response, set when discrepancies were found.
	State *auditDomain.LedgerState `json:"state,omitempty"`
}
