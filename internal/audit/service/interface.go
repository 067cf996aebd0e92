// Package service provides the audit ledger building blocks: entry hashing,
// tamper notification and retention archival.
package service

import (
	"context"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
)

// Hasher computes the chain digest of an entry.
type Hasher interface {
	// Algorithm returns the algorithm used for new entries.
	Algorithm() HashAlgorithm

	// Hash returns the tagged digest of entry using the configured algorithm.
	Hash(entry *auditDomain.Entry) string

	// Recompute returns the digest of entry using the algorithm named by the
	// tag of its stored Hash, so entries hashed before an algorithm change
	// still verify.
	Recompute(entry *auditDomain.Entry) string
}

// Notifier delivers tamper alerts out-of-band. Implementations participate in
// the transaction carried by ctx.
type Notifier interface {
	NotifyTamper(ctx context.Context, alert *auditDomain.TamperAlert) error
}

// Archiver stores entries before they are purged and returns the object key.
type Archiver interface {
	Archive(ctx context.Context, tenantID string, entries []*auditDomain.Entry) (string, error)
}
