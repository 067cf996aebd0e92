// Package usecase implements the per-tenant hash-chained audit ledger:
// linearized appends, chain verification, tamper response and retention.
//
// # Chain Layout
//
// Every tenant owns an independent ledger. Entry n stores the hash of entry
// n-1 in PreviousHash and its own content hash in Hash. The first entry
// chains off GenesisHash, or off the purge anchor once older entries were
// archived. Sequences are dense and start at 1.
//
// # Concurrency
//
// Appends for one tenant are serialized by an in-process tenant lock. A
// second process writing the same ledger loses on the (tenant_id, sequence)
// unique constraint and retries against the new head, so the chain never
// forks. Different tenants never contend.
//
// # Tamper Response
//
// VerifyChain only reports. OnTamperDetected turns a discrepancy into a
// response: it locks every entry from the first bad one on, flags the ledger,
// queues a tamper alert through the outbox and appends a
// ledger.tamper_detected entry, all in one transaction. A flagged ledger
// keeps accepting appends but refuses purges.
//
// # Retention
//
// PurgeExpired archives an intact prefix of expired entries to blob storage,
// deletes it and moves the anchor past it. Verification of the retained
// ledger starts from the anchor.
//
// # Usage Example
//
//	ledger := usecase.NewLedgerUseCase(txManager, entries, states, hasher, notifier, archiver, logger, cfg)
//
//	stored, err := ledger.Append(ctx, &auditDomain.Entry{
//	    TenantID:     "tenant-a",
//	    Action:       auditDomain.ActionFieldAccessed,
//	    ResourceType: "client",
//	    ResourceID:   "c-42",
//	})
//
//	report, err := ledger.VerifyChain(ctx, "tenant-a", auditDomain.Range{})
//	if err == nil && !report.Clean() {
//	    first := report.Discrepancies[0]
//	    _, err = ledger.OnTamperDetected(ctx, "tenant-a", first.EntryID, first.Kind)
//	}
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
)

// EntryRepository persists ledger entries. Implementations must enforce
// uniqueness of (tenant_id, sequence) and return ErrSequenceConflict on
// violation. All methods participate in a transaction carried by ctx.
//
// Implementations exist for PostgreSQL, MySQL and memory. Entries are never
// updated except for the lock columns set by LockFrom.
type EntryRepository interface {
	// Create inserts a fully populated entry. A duplicate (tenant, sequence)
	// returns ErrSequenceConflict.
	Create(ctx context.Context, entry *auditDomain.Entry) error

	// Get returns one entry or ErrEntryNotFound.
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*auditDomain.Entry, error)

	// Latest returns the highest-sequence entry or ErrEntryNotFound.
	Latest(ctx context.Context, tenantID string) (*auditDomain.Entry, error)

	// ListRange returns entries with fromSeq <= sequence <= toSeq in ascending
	// order. A toSeq of zero means unbounded.
	ListRange(ctx context.Context, tenantID string, fromSeq, toSeq uint64, limit int) ([]*auditDomain.Entry, error)

	// LockFrom marks every unlocked entry with sequence >= fromSeq as locked.
	LockFrom(ctx context.Context, tenantID string, fromSeq uint64, lockedAt time.Time) (int64, error)

	// ListTenants returns every tenant with a ledger.
	ListTenants(ctx context.Context) ([]string, error)

	// DeleteThrough removes entries with sequence <= throughSeq.
	DeleteThrough(ctx context.Context, tenantID string, throughSeq uint64) (int64, error)
}

// LedgerStateRepository persists the per-tenant LedgerState.
type LedgerStateRepository interface {
	// Get returns the stored state, or NewLedgerState when none exists.
	Get(ctx context.Context, tenantID string) (*auditDomain.LedgerState, error)

	// Upsert creates or replaces the state of state.TenantID.
	Upsert(ctx context.Context, state *auditDomain.LedgerState) error
}

// LedgerUseCase is the audit hash-chain ledger.
type LedgerUseCase interface {
	// Append chains entry onto the tenant ledger and returns the stored entry.
	// ID, Sequence, CreatedAt, PreviousHash and Hash are assigned here;
	// ActorID defaults to the actor attached to ctx.
	Append(ctx context.Context, entry *auditDomain.Entry) (*auditDomain.Entry, error)

	// VerifyChain recomputes every entry in rng and reports all discrepancies.
	VerifyChain(ctx context.Context, tenantID string, rng auditDomain.Range) (*auditDomain.VerificationReport, error)

	// OnTamperDetected locks entries from the first bad entry on, flags the
	// ledger, enqueues the alert and records the response as a new entry.
	OnTamperDetected(
		ctx context.Context,
		tenantID string,
		entryID uuid.UUID,
		kind auditDomain.DiscrepancyKind,
	) (*auditDomain.LedgerState, error)

	// State returns the flag, anchor and first bad entry of the tenant ledger.
	State(ctx context.Context, tenantID string) (*auditDomain.LedgerState, error)

	// List returns entries in rng in ascending sequence order. A limit of
	// zero or above the configured page size is clamped to the page size.
	List(ctx context.Context, tenantID string, rng auditDomain.Range, limit int) ([]*auditDomain.Entry, error)

	// Tenants returns every tenant with a ledger.
	Tenants(ctx context.Context) ([]string, error)

	// PurgeExpired archives then deletes entries older than retention.
	PurgeExpired(ctx context.Context, tenantID string, retention time.Duration) (*auditDomain.PurgeResult, error)
}
