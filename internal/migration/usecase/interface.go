// Package usecase implements the batched re-encryption migration engine.
//
// # Collections And Batches
//
// The engine walks every configured RecordCollection of one tenant in
// ascending id order, BatchSize records at a time. Each field of a record is
// classified by its value:
//   - empty: left alone
//   - envelope under the target version: skipped
//   - envelope under another retained version: opened with that version and
//     sealed again under the target
//   - carrying the envelope tag but malformed: a record error
//   - anything else: plaintext, encrypted under the target
//
// # Failure Isolation
//
// A record with any failing field is left untouched and reported in the
// result; the rest of the batch still runs. A storage failure ends the
// collection but later collections still run. Only cancellation stops the
// whole run.
//
// # Resumability
//
// After each batch the last id is saved as a checkpoint. A second run with
// the same version pair resumes after it, and a completed collection simply
// counts every record as skipped.
//
// # Usage Example
//
//	engine := usecase.NewMigrationUseCase(collections, checkpoints, encryption, keys, ledger, logger,
//	    usecase.MigrationConfig{BatchSize: 500})
//
//	result, err := engine.Run(ctx, "tenant-a", 1, 2)
//	processed, succeeded, failed, skipped := result.Totals()
package usecase

import (
	"context"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
	migrationDomain "github.com/allisson/casevault/internal/migration/domain"
)

// RecordCollection is one kind of record carrying protected fields.
type RecordCollection interface {
	// Name identifies the collection in checkpoints and results.
	Name() string

	// FetchBatch returns up to limit records of the tenant with an ID greater
	// than afterID, in ascending ID order. An empty afterID starts from the
	// beginning.
	FetchBatch(ctx context.Context, tenantID, afterID string, limit int) ([]migrationDomain.Record, error)

	// ApplyUpdates writes the staged field updates of one batch. An update only
	// applies while its field still holds Previous; the IDs of records with an
	// update that matched nothing are returned so they can be counted as
	// skipped.
	ApplyUpdates(ctx context.Context, tenantID string, updates []migrationDomain.FieldUpdate) ([]string, error)
}

// CheckpointRepository persists the cursor of each collection.
type CheckpointRepository interface {
	// Get returns ErrCheckpointNotFound when the collection has no checkpoint.
	Get(ctx context.Context, tenantID, collection string, oldVersion, newVersion uint) (*migrationDomain.Checkpoint, error)

	// Save creates or replaces the checkpoint.
	Save(ctx context.Context, checkpoint *migrationDomain.Checkpoint) error
}

// ValueReEncrypter moves a protected value to a target key version.
type ValueReEncrypter interface {
	ReEncryptValue(ctx context.Context, tenantID, value string, targetVersion uint) (string, error)
}

// KeyProvider resolves tenant key versions.
type KeyProvider interface {
	GetOrCreateActiveKey(ctx context.Context, tenantID string) (*cryptoDomain.TenantKey, error)
	GetKeyByVersion(ctx context.Context, tenantID string, version uint) (*cryptoDomain.TenantKey, error)
}

// AuditAppender records completed migrations on the tenant ledger.
type AuditAppender interface {
	Append(ctx context.Context, entry *auditDomain.Entry) (*auditDomain.Entry, error)
}

// MigrationUseCase re-encrypts every protected field of a tenant.
type MigrationUseCase interface {
	// Run moves every field of every collection to newVersion. Fields under
	// oldVersion (or any other retained version) are re-encrypted and plaintext
	// fields are encrypted. Per-record failures are reported in the result and
	// never abort the run. On cancellation the partial result is returned with
	// the context error.
	Run(ctx context.Context, tenantID string, oldVersion, newVersion uint) (*migrationDomain.Result, error)

	// RunInitialEncryption encrypts legacy plaintext fields under the tenant's
	// active version, creating version 1 if needed.
	RunInitialEncryption(ctx context.Context, tenantID string) (*migrationDomain.Result, error)
}
