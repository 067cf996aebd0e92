// Package domain defines the tamper-evident audit ledger model.
//
// Each tenant owns an independent hash chain. Entry n stores the hash of entry
// n-1 in PreviousHash (GenesisHash for the first entry) and its own Hash is a
// digest over its content and PreviousHash, so any retroactive edit is
// detectable by recomputing the chain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the PreviousHash of the first entry in every tenant chain.
const GenesisHash = "GENESIS"

// Action identifies the kind of operation an entry records.
type Action string

const (
	ActionFieldAccessed       Action = "field.accessed"
	ActionCrossTenantAccessed Action = "cross_tenant.accessed"
	ActionKeyCreated          Action = "key.created"
	ActionKeyRotated          Action = "key.rotated"
	ActionMigrationCompleted  Action = "migration.completed"
	ActionTamperDetected      Action = "ledger.tamper_detected"
	ActionLedgerArchived      Action = "ledger.archived"
)

// Entry is one immutable ledger record. Only Locked and LockedAt may change
// after creation, and neither participates in the hash.
type Entry struct {
	ID           uuid.UUID         `json:"id"`
	TenantID     string            `json:"tenant_id"`
	Sequence     uint64            `json:"sequence"`
	Action       Action            `json:"action"`
	ActorID      string            `json:"actor_id"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Details      map[string]string `json:"details,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	PreviousHash string            `json:"previous_hash"`
	Hash         string            `json:"hash"`
	Locked       bool              `json:"locked"`
	LockedAt     *time.Time        `json:"locked_at,omitempty"`
}

// Validate checks the caller-supplied fields of a new entry.
func (e *Entry) Validate() error {
	if e.TenantID == "" {
		return ErrInvalidTenantID
	}
	if e.Action == "" {
		return ErrInvalidEntry
	}
	return nil
}

// Range bounds a verification or listing by sequence. Zero means unbounded.
type Range struct {
	FromSequence uint64 `json:"from_sequence,omitempty"`
	ToSequence   uint64 `json:"to_sequence,omitempty"`
}

// Contains reports whether seq falls inside r.
func (r Range) Contains(seq uint64) bool {
	if r.FromSequence > 0 && seq < r.FromSequence {
		return false
	}
	if r.ToSequence > 0 && seq > r.ToSequence {
		return false
	}
	return true
}

// Validate rejects inverted ranges.
func (r Range) Validate() error {
	if r.ToSequence > 0 && r.FromSequence > r.ToSequence {
		return ErrInvalidRange
	}
	return nil
}

// TamperAlert is the out-of-band notification emitted when a ledger is flagged.
type TamperAlert struct {
	TenantID      string          `json:"tenant_id"`
	EntryID       uuid.UUID       `json:"entry_id"`
	Sequence      uint64          `json:"sequence"`
	Kind          DiscrepancyKind `json:"kind"`
	LockedEntries int64           `json:"locked_entries"`
	DetectedAt    time.Time       `json:"detected_at"`
}
