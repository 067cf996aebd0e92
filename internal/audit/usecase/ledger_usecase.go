package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	auditService "github.com/allisson/casevault/internal/audit/service"
	"github.com/allisson/casevault/internal/database"
	"github.com/allisson/casevault/internal/tenantlock"
)

// Defaults applied by NewLedgerUseCase.
const (
	DefaultPageSize          = 500
	DefaultAppendMaxAttempts = 3
)

// missingPredecessor is reported as the expected hash when the entry before a
// verified range no longer exists.
const missingPredecessor = "<missing>"

// LedgerConfig tunes the ledger use case.
type LedgerConfig struct {
	// MinRetention is the shortest retention PurgeExpired accepts.
	MinRetention time.Duration
	// PageSize bounds how many entries are read per scan.
	PageSize int
	// AppendMaxAttempts bounds retries after a sequence conflict with another process.
	AppendMaxAttempts int
}

// ledgerUseCase implements LedgerUseCase over an entry repository and a
// ledger state repository sharing one transaction manager.
type ledgerUseCase struct {
	txManager database.TxManager
	entries   EntryRepository
	states    LedgerStateRepository
	hasher    auditService.Hasher
	notifier  auditService.Notifier
	archiver  auditService.Archiver
	logger    *slog.Logger
	cfg       LedgerConfig

	locks *tenantlock.Locker
	now   func() time.Time
}

// Append chains entry onto the tenant ledger.
//
// The entry is validated, then inserted under the tenant lock inside a
// transaction that reads the current head. The caller's entry is not
// modified; the stored copy carries the assigned fields.
//
// Parameters:
//   - ctx: Context for cancellation and transaction propagation; the actor
//     attached with WithActor is used when entry.ActorID is empty
//   - entry: Tenant, action and resource of the event; Details is copied
//
// Returns:
//   - The stored entry with ID, Sequence, CreatedAt, PreviousHash and Hash set
//   - ErrInvalidEntry or ErrInvalidTenantID when the entry fails validation
//   - ErrSequenceConflict when another process kept winning the head after
//     AppendMaxAttempts tries
func (l *ledgerUseCase) Append(ctx context.Context, entry *auditDomain.Entry) (*auditDomain.Entry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	var stored *auditDomain.Entry
	err := l.locks.WithLock(ctx, entry.TenantID, func(ctx context.Context) error {
		var err error
		stored, err = l.appendLocked(ctx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// appendLocked chains entry onto the ledger. The caller holds the tenant lock;
// a sequence conflict can then only come from another process and is retried.
func (l *ledgerUseCase) appendLocked(ctx context.Context, entry *auditDomain.Entry) (*auditDomain.Entry, error) {
	policy := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(10*time.Millisecond),
			backoff.WithMaxInterval(200*time.Millisecond),
		),
		uint64(l.cfg.AppendMaxAttempts-1),
	)

	return backoff.RetryWithData(func() (*auditDomain.Entry, error) {
		stored, err := l.insertNext(ctx, entry)
		if errors.Is(err, auditDomain.ErrSequenceConflict) {
			l.logger.Warn("audit append conflict, retrying", slog.String("tenant_id", entry.TenantID))
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return stored, nil
	}, backoff.WithContext(policy, ctx))
}

// insertNext reads the head and inserts entry as its successor in one
// transaction.
func (l *ledgerUseCase) insertNext(ctx context.Context, entry *auditDomain.Entry) (*auditDomain.Entry, error) {
	var stored *auditDomain.Entry
	err := l.txManager.WithTx(ctx, func(ctx context.Context) error {
		sequence, previousHash, err := l.head(ctx, entry.TenantID)
		if err != nil {
			return err
		}

		e := *entry
		e.Details = maps.Clone(entry.Details)
		e.ID = uuid.Must(uuid.NewV7())
		e.Sequence = sequence + 1
		e.CreatedAt = l.now().UTC().Truncate(time.Microsecond)
		e.PreviousHash = previousHash
		e.Locked = false
		e.LockedAt = nil
		if e.ActorID == "" {
			e.ActorID = auditDomain.ActorFromContext(ctx)
		}
		e.Hash = l.hasher.Hash(&e)

		if err := l.entries.Create(ctx, &e); err != nil {
			return err
		}
		stored = &e
		return nil
	})
	return stored, err
}

// head returns the sequence and hash the next entry chains off: the latest
// entry, or the purge anchor when the retained ledger is empty.
//
// The hash of the latest entry is recomputed rather than read back, the same
// linkage rule VerifyChain applies. A corrupted stored hash on the newest
// entry is then reported once, at that entry, and entries appended after it
// (including the tamper response itself) still verify clean.
func (l *ledgerUseCase) head(ctx context.Context, tenantID string) (uint64, string, error) {
	latest, err := l.entries.Latest(ctx, tenantID)
	if err == nil {
		return latest.Sequence, l.hasher.Recompute(latest), nil
	}
	if !errors.Is(err, auditDomain.ErrEntryNotFound) {
		return 0, "", err
	}

	state, err := l.states.Get(ctx, tenantID)
	if err != nil {
		return 0, "", err
	}
	return state.AnchorSequence, state.AnchorHash, nil
}

// VerifyChain recomputes every entry in rng and reports all discrepancies.
//
// Each entry is checked twice: its PreviousHash must equal the recomputed
// hash of its predecessor (chain_break), and its stored Hash must equal the
// hash recomputed from its content (hash_mismatch). Verification never stops
// at the first problem and never modifies the ledger.
//
// A range starting at or before the purge anchor is clamped to the first
// retained entry and chains off the anchor hash. A range starting later
// chains off the recomputed hash of the entry just before it.
//
// Parameters:
//   - ctx: Context for cancellation
//   - tenantID: Ledger to verify
//   - rng: Inclusive sequence range; zero bounds mean the whole ledger
//
// Returns:
//   - A report listing every discrepancy in sequence order
//   - ErrInvalidTenantID or ErrInvalidRange for bad arguments
//   - A repository error when entries cannot be read
func (l *ledgerUseCase) VerifyChain(
	ctx context.Context,
	tenantID string,
	rng auditDomain.Range,
) (*auditDomain.VerificationReport, error) {
	if tenantID == "" {
		return nil, auditDomain.ErrInvalidTenantID
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	state, err := l.states.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	from := rng.FromSequence
	prev := state.AnchorHash
	if from <= state.AnchorSequence+1 {
		from = state.AnchorSequence + 1
	} else {
		pred, err := l.entries.ListRange(ctx, tenantID, from-1, from-1, 1)
		if err != nil {
			return nil, err
		}
		prev = missingPredecessor
		if len(pred) == 1 {
			prev = l.hasher.Recompute(pred[0])
		}
	}

	report := &auditDomain.VerificationReport{
		TenantID:      tenantID,
		Range:         auditDomain.Range{FromSequence: from, ToSequence: rng.ToSequence},
		Discrepancies: []auditDomain.Discrepancy{},
	}

	for {
		page, err := l.entries.ListRange(ctx, tenantID, from, rng.ToSequence, l.cfg.PageSize)
		if err != nil {
			return nil, err
		}
		for _, e := range page {
			report.TotalVerified++

			// Linkage is checked against the recomputed predecessor hash so a
			// corrupted stored hash is reported once, at its own entry.
			if e.PreviousHash != prev {
				report.Discrepancies = append(report.Discrepancies, auditDomain.Discrepancy{
					EntryID:  e.ID,
					Sequence: e.Sequence,
					Kind:     auditDomain.DiscrepancyChainBreak,
					Expected: prev,
					Actual:   e.PreviousHash,
				})
			}

			recomputed := l.hasher.Recompute(e)
			if recomputed != e.Hash {
				report.Discrepancies = append(report.Discrepancies, auditDomain.Discrepancy{
					EntryID:  e.ID,
					Sequence: e.Sequence,
					Kind:     auditDomain.DiscrepancyHashMismatch,
					Expected: recomputed,
					Actual:   e.Hash,
				})
			}
			prev = recomputed
		}
		if len(page) < l.cfg.PageSize {
			break
		}
		from = page[len(page)-1].Sequence + 1
	}

	report.VerifiedAt = l.now().UTC()
	if !report.Clean() {
		l.logger.Warn("audit chain verification found discrepancies",
			slog.String("tenant_id", tenantID),
			slog.Int("discrepancies", len(report.Discrepancies)),
			slog.Int("total_verified", report.TotalVerified),
		)
	}
	return report, nil
}

// OnTamperDetected responds to a discrepancy found by VerifyChain.
//
// Under the tenant lock and in one transaction it:
//   - locks every entry with a sequence at or after the bad entry
//   - flags the ledger, keeping the earliest bad entry seen so far
//   - queues a tamper alert for out-of-band delivery
//   - appends a ledger.tamper_detected entry describing the response
//
// Calling it again for the same or a later entry is safe; the flag keeps the
// first detection time and the earliest bad sequence.
//
// Parameters:
//   - ctx: Context for cancellation and transaction propagation
//   - tenantID: Ledger the discrepancy belongs to
//   - entryID: ID of the entry reported in the discrepancy
//   - kind: DiscrepancyChainBreak or DiscrepancyHashMismatch
//
// Returns:
//   - The updated ledger state
//   - ErrInvalidEntry for an unknown kind
//   - ErrEntryNotFound when entryID is not in the tenant ledger
func (l *ledgerUseCase) OnTamperDetected(
	ctx context.Context,
	tenantID string,
	entryID uuid.UUID,
	kind auditDomain.DiscrepancyKind,
) (*auditDomain.LedgerState, error) {
	if tenantID == "" {
		return nil, auditDomain.ErrInvalidTenantID
	}
	if kind != auditDomain.DiscrepancyChainBreak && kind != auditDomain.DiscrepancyHashMismatch {
		return nil, auditDomain.ErrInvalidEntry
	}

	var state *auditDomain.LedgerState
	var locked int64
	err := l.locks.WithLock(ctx, tenantID, func(ctx context.Context) error {
		return l.txManager.WithTx(ctx, func(ctx context.Context) error {
			bad, err := l.entries.Get(ctx, tenantID, entryID)
			if err != nil {
				return err
			}

			now := l.now().UTC()
			locked, err = l.entries.LockFrom(ctx, tenantID, bad.Sequence, now)
			if err != nil {
				return err
			}

			state, err = l.states.Get(ctx, tenantID)
			if err != nil {
				return err
			}
			if !state.Flagged() || bad.Sequence < state.FirstBadSequence {
				state.FirstBadEntryID = &bad.ID
				state.FirstBadSequence = bad.Sequence
				state.Kind = kind
			}
			if !state.Flagged() {
				state.FlaggedAt = &now
			}
			state.Status = auditDomain.LedgerFlagged
			state.UpdatedAt = now
			if err := l.states.Upsert(ctx, state); err != nil {
				return err
			}

			err = l.notifier.NotifyTamper(ctx, &auditDomain.TamperAlert{
				TenantID:      tenantID,
				EntryID:       bad.ID,
				Sequence:      bad.Sequence,
				Kind:          kind,
				LockedEntries: locked,
				DetectedAt:    now,
			})
			if err != nil {
				return err
			}

			_, err = l.appendLocked(ctx, &auditDomain.Entry{
				TenantID:     tenantID,
				Action:       auditDomain.ActionTamperDetected,
				ActorID:      auditDomain.ActorFromContext(ctx),
				ResourceType: "audit_entry",
				ResourceID:   bad.ID.String(),
				Details: map[string]string{
					"kind":           string(kind),
					"sequence":       strconv.FormatUint(bad.Sequence, 10),
					"locked_entries": strconv.FormatInt(locked, 10),
				},
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Error("audit ledger tamper detected",
		slog.String("tenant_id", tenantID),
		slog.String("entry_id", entryID.String()),
		slog.String("kind", string(kind)),
		slog.Int64("locked_entries", locked),
	)
	return state, nil
}

// State returns the stored ledger state of tenantID.
func (l *ledgerUseCase) State(ctx context.Context, tenantID string) (*auditDomain.LedgerState, error) {
	if tenantID == "" {
		return nil, auditDomain.ErrInvalidTenantID
	}
	return l.states.Get(ctx, tenantID)
}

func (l *ledgerUseCase) List(
	ctx context.Context,
	tenantID string,
	rng auditDomain.Range,
	limit int,
) ([]*auditDomain.Entry, error) {
	if tenantID == "" {
		return nil, auditDomain.ErrInvalidTenantID
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > l.cfg.PageSize {
		limit = l.cfg.PageSize
	}
	return l.entries.ListRange(ctx, tenantID, rng.FromSequence, rng.ToSequence, limit)
}

// Tenants lists every tenant with at least one stored entry.
func (l *ledgerUseCase) Tenants(ctx context.Context) ([]string, error) {
	return l.entries.ListTenants(ctx)
}

// PurgeExpired archives then deletes entries created before now - retention.
//
// Only an intact prefix of the ledger is purged: each expired entry is
// verified against its predecessor before it leaves the database, and the
// first retained entry stops the purge. Entries are archived page by page;
// each page is deleted and the anchor moved in one transaction after its
// archive object was written. A ledger.archived entry records the purge.
//
// Parameters:
//   - ctx: Context for cancellation; checked between pages
//   - tenantID: Ledger to purge
//   - retention: Age after which entries expire; at least MinRetention
//
// Returns:
//   - The number of archived and deleted entries, the archive keys and the
//     new anchor sequence
//   - ErrRetentionTooShort when retention is below MinRetention
//   - ErrLedgerFlagged when the ledger is flagged for tampering
//   - ErrChainBreak or ErrHashMismatch when an expired entry fails verification
func (l *ledgerUseCase) PurgeExpired(
	ctx context.Context,
	tenantID string,
	retention time.Duration,
) (*auditDomain.PurgeResult, error) {
	if tenantID == "" {
		return nil, auditDomain.ErrInvalidTenantID
	}
	if retention < l.cfg.MinRetention {
		return nil, auditDomain.ErrRetentionTooShort
	}

	result := &auditDomain.PurgeResult{
		TenantID: tenantID,
		Cutoff:   l.now().UTC().Add(-retention),
	}

	err := l.locks.WithLock(ctx, tenantID, func(ctx context.Context) error {
		state, err := l.states.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		if state.Flagged() {
			return auditDomain.ErrLedgerFlagged
		}

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			done, err := l.purgePage(ctx, state, result)
			if err != nil {
				return err
			}
			if done {
				break
			}
		}
		result.AnchorSequence = state.AnchorSequence

		if result.Deleted == 0 {
			return nil
		}
		_, err = l.appendLocked(ctx, &auditDomain.Entry{
			TenantID:     tenantID,
			Action:       auditDomain.ActionLedgerArchived,
			ActorID:      auditDomain.ActorFromContext(ctx),
			ResourceType: "audit_ledger",
			ResourceID:   tenantID,
			Details: map[string]string{
				"through_sequence": strconv.FormatUint(state.AnchorSequence, 10),
				"deleted":          strconv.Itoa(result.Deleted),
				"cutoff":           result.Cutoff.Format(time.RFC3339),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Deleted > 0 {
		l.logger.Info("audit entries purged",
			slog.String("tenant_id", tenantID),
			slog.Int("deleted", result.Deleted),
			slog.Uint64("anchor_sequence", result.AnchorSequence),
		)
	}
	return result, nil
}

// purgePage archives and deletes the next run of expired entries and moves the
// anchor past them. It reports done once a retained entry or the end of the
// ledger is reached.
func (l *ledgerUseCase) purgePage(
	ctx context.Context,
	state *auditDomain.LedgerState,
	result *auditDomain.PurgeResult,
) (bool, error) {
	page, err := l.entries.ListRange(ctx, state.TenantID, state.AnchorSequence+1, 0, l.cfg.PageSize)
	if err != nil {
		return false, err
	}

	prev := state.AnchorHash
	var expired []*auditDomain.Entry
	for _, e := range page {
		if !e.CreatedAt.Before(result.Cutoff) {
			break
		}
		// Only an intact prefix may leave the database.
		if e.PreviousHash != prev {
			return false, fmt.Errorf("%w at sequence %d", auditDomain.ErrChainBreak, e.Sequence)
		}
		if l.hasher.Recompute(e) != e.Hash {
			return false, fmt.Errorf("%w at sequence %d", auditDomain.ErrHashMismatch, e.Sequence)
		}
		prev = e.Hash
		expired = append(expired, e)
	}
	if len(expired) == 0 {
		return true, nil
	}

	key, err := l.archiver.Archive(ctx, state.TenantID, expired)
	if err != nil {
		return false, err
	}

	last := expired[len(expired)-1]
	err = l.txManager.WithTx(ctx, func(ctx context.Context) error {
		deleted, err := l.entries.DeleteThrough(ctx, state.TenantID, last.Sequence)
		if err != nil {
			return err
		}
		result.Deleted += int(deleted)

		state.AnchorSequence = last.Sequence
		state.AnchorHash = last.Hash
		state.UpdatedAt = l.now().UTC()
		return l.states.Upsert(ctx, state)
	})
	if err != nil {
		return false, err
	}

	result.Archived += len(expired)
	result.ArchiveKeys = append(result.ArchiveKeys, key)
	return len(expired) < len(page) || len(page) < l.cfg.PageSize, nil
}

// NewLedgerUseCase creates a LedgerUseCase.
//
// A PageSize or AppendMaxAttempts of zero selects DefaultPageSize and
// DefaultAppendMaxAttempts. The notifier queues tamper alerts; it must write
// through the transaction carried by ctx so the alert commits with the flag.
func NewLedgerUseCase(
	txManager database.TxManager,
	entries EntryRepository,
	states LedgerStateRepository,
	hasher auditService.Hasher,
	notifier auditService.Notifier,
	archiver auditService.Archiver,
	logger *slog.Logger,
	cfg LedgerConfig,
) LedgerUseCase {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.AppendMaxAttempts <= 0 {
		cfg.AppendMaxAttempts = DefaultAppendMaxAttempts
	}
	return &ledgerUseCase{
		txManager: txManager,
		entries:   entries,
		states:    states,
		hasher:    hasher,
		notifier:  notifier,
		archiver:  archiver,
		logger:    logger,
		cfg:       cfg,
		locks:     tenantlock.New(),
		now:       time.Now,
	}
}
