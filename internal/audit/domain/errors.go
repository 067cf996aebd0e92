package domain

import (
	"github.com/allisson/casevault/internal/errors"
)

// Audit ledger error definitions.
var (
	// ErrInvalidTenantID indicates an empty tenant identifier.
	ErrInvalidTenantID = errors.Wrap(errors.ErrInvalidInput, "invalid tenant id")

	// ErrInvalidEntry indicates a new entry is missing required fields.
	ErrInvalidEntry = errors.Wrap(errors.ErrInvalidInput, "invalid audit entry")

	// ErrInvalidRange indicates a verification range whose start is after its end.
	ErrInvalidRange = errors.Wrap(errors.ErrInvalidInput, "invalid sequence range")

	// ErrEntryNotFound indicates the referenced entry does not exist.
	ErrEntryNotFound = errors.Wrap(errors.ErrNotFound, "audit entry not found")

	// ErrSequenceConflict indicates another writer appended the same sequence first.
	ErrSequenceConflict = errors.Wrap(errors.ErrConflict, "audit sequence conflict")

	// ErrChainBreak indicates an entry's PreviousHash does not match its predecessor.
	ErrChainBreak = errors.Wrap(errors.ErrConflict, "audit chain break")

	// ErrHashMismatch indicates an entry's Hash does not match its content.
	ErrHashMismatch = errors.Wrap(errors.ErrConflict, "audit hash mismatch")

	// ErrLedgerFlagged indicates an operation refused because tampering was detected.
	ErrLedgerFlagged = errors.Wrap(errors.ErrLocked, "audit ledger flagged for tampering")

	// ErrRetentionTooShort indicates a purge cutoff inside the minimum retention window.
	ErrRetentionTooShort = errors.Wrap(errors.ErrInvalidInput, "retention period below minimum")

	// ErrUnsupportedHashAlgorithm indicates an unknown ledger digest algorithm.
	ErrUnsupportedHashAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported hash algorithm")
)
