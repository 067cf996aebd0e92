package domain

import (
	"time"

	"github.com/google/uuid"
)

// DiscrepancyKind classifies an integrity violation.
type DiscrepancyKind string

const (
	// DiscrepancyChainBreak means PreviousHash does not match the predecessor.
	DiscrepancyChainBreak DiscrepancyKind = "chain_break"
	// DiscrepancyHashMismatch means the stored Hash does not match the entry content.
	DiscrepancyHashMismatch DiscrepancyKind = "hash_mismatch"
)

// Discrepancy is one integrity violation found by verification.
type Discrepancy struct {
	EntryID  uuid.UUID       `json:"entry_id"`
	Sequence uint64          `json:"sequence"`
	Kind     DiscrepancyKind `json:"kind"`
	Expected string          `json:"expected"`
	Actual   string          `json:"actual"`
}

// VerificationReport is the result of walking a tenant chain. Discrepancies
// lists every violation found, in sequence order.
type VerificationReport struct {
	TenantID      string        `json:"tenant_id"`
	Range         Range         `json:"range"`
	TotalVerified int           `json:"total_verified"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	VerifiedAt    time.Time     `json:"verified_at"`
}

// Clean reports whether no discrepancy was found.
func (r *VerificationReport) Clean() bool {
	return len(r.Discrepancies) == 0
}

// FirstDiscrepancy returns the lowest-sequence discrepancy.
func (r *VerificationReport) FirstDiscrepancy() (Discrepancy, bool) {
	if len(r.Discrepancies) == 0 {
		return Discrepancy{}, false
	}
	return r.Discrepancies[0], true
}

// LedgerStatus is the state of a tenant ledger as a whole.
type LedgerStatus string

const (
	LedgerClean   LedgerStatus = "clean"
	LedgerFlagged LedgerStatus = "flagged"
)

// LedgerState tracks whether a tenant ledger has been flagged for tampering
// and where the retained chain starts. A flagged ledger is never cleared
// automatically.
type LedgerState struct {
	TenantID         string          `json:"tenant_id"`
	Status           LedgerStatus    `json:"status"`
	FlaggedAt        *time.Time      `json:"flagged_at,omitempty"`
	FirstBadEntryID  *uuid.UUID      `json:"first_bad_entry_id,omitempty"`
	FirstBadSequence uint64          `json:"first_bad_sequence,omitempty"`
	Kind             DiscrepancyKind `json:"kind,omitempty"`
	// AnchorSequence and AnchorHash describe the last purged entry. The first
	// retained entry must chain off AnchorHash.
	AnchorSequence uint64    `json:"anchor_sequence"`
	AnchorHash     string    `json:"anchor_hash"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewLedgerState returns the initial state of a tenant ledger.
func NewLedgerState(tenantID string) *LedgerState {
	return &LedgerState{
		TenantID:   tenantID,
		Status:     LedgerClean,
		AnchorHash: GenesisHash,
	}
}

// Flagged reports whether tampering has been detected.
func (s *LedgerState) Flagged() bool {
	return s.Status == LedgerFlagged
}

// PurgeResult describes a completed retention purge.
type PurgeResult struct {
	TenantID       string    `json:"tenant_id"`
	Archived       int       `json:"archived"`
	Deleted        int       `json:"deleted"`
	ArchiveKeys    []string  `json:"archive_keys,omitempty"`
	AnchorSequence uint64    `json:"anchor_sequence"`
	Cutoff         time.Time `json:"cutoff"`
}

// SweepResult summarises one integrity sweep over every tenant ledger.
type SweepResult struct {
	Tenants        int       `json:"tenants"`
	Clean          int       `json:"clean"`
	Flagged        []string  `json:"flagged,omitempty"`
	AlreadyFlagged []string  `json:"already_flagged,omitempty"`
	Failed         []string  `json:"failed,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
