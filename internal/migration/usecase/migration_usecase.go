package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
	migrationDomain "github.com/allisson/casevault/internal/migration/domain"
)

// DefaultBatchSize is the number of records fetched per batch.
const DefaultBatchSize = 100

// MigrationConfig tunes the migration engine.
type MigrationConfig struct {
	BatchSize int
}

// migrationUseCase implements MigrationUseCase.
type migrationUseCase struct {
	collections []RecordCollection
	checkpoints CheckpointRepository
	values      ValueReEncrypter
	keys        KeyProvider
	audit       AuditAppender
	logger      *slog.Logger
	cfg         MigrationConfig
	now         func() time.Time
}

// RunInitialEncryption resolves the tenant's active version, creating version
// 1 when the tenant has no key, and runs Run(0, active).
//
// Plaintext fields are encrypted and envelopes under any other retained
// version are moved to the active version, so after a clean run every field
// of the tenant is protected by one key.
//
// Parameters:
//   - ctx: Context for cancellation
//   - tenantID: Tenant whose records are encrypted
//
// Returns:
//   - The per-collection result
//   - ErrInvalidTenantID for an empty tenant
//   - Any key management error from resolving the active version
func (m *migrationUseCase) RunInitialEncryption(
	ctx context.Context,
	tenantID string,
) (*migrationDomain.Result, error) {
	if tenantID == "" {
		return nil, migrationDomain.ErrInvalidTenantID
	}
	key, err := m.keys.GetOrCreateActiveKey(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	version := key.Version
	key.Wipe()

	return m.Run(ctx, tenantID, 0, version)
}

// Run moves every protected field of the tenant to newVersion.
//
// The target version must exist before any record is read. Collections are
// processed in order; per-record failures are recorded on the result and
// never abort the run. On completion a migration.completed entry with the
// totals is appended to the tenant ledger.
//
// Parameters:
//   - ctx: Context for cancellation; checked between batches
//   - tenantID: Tenant whose records are migrated
//   - oldVersion: Version being retired, 0 for an initial encryption pass
//   - newVersion: Target version; must be greater than oldVersion
//
// Returns:
//   - The result, partial and marked Canceled when ctx ended the run
//   - ErrInvalidTenantID or ErrInvalidVersions for bad arguments
//   - ErrKeyVersionNotFound when newVersion does not exist
//   - The context error on cancellation, alongside the partial result
func (m *migrationUseCase) Run(
	ctx context.Context,
	tenantID string,
	oldVersion, newVersion uint,
) (*migrationDomain.Result, error) {
	if tenantID == "" {
		return nil, migrationDomain.ErrInvalidTenantID
	}
	if newVersion == 0 || oldVersion >= newVersion {
		return nil, migrationDomain.ErrInvalidVersions
	}

	// The target version must exist before any record is touched.
	target, err := m.keys.GetKeyByVersion(ctx, tenantID, newVersion)
	if err != nil {
		return nil, err
	}
	target.Wipe()

	result := &migrationDomain.Result{
		TenantID:    tenantID,
		OldVersion:  oldVersion,
		NewVersion:  newVersion,
		Collections: make([]migrationDomain.CollectionResult, 0, len(m.collections)),
		StartedAt:   m.now().UTC(),
	}

	m.logger.Info("starting re-encryption migration",
		slog.String("tenant_id", tenantID),
		slog.Uint64("old_version", uint64(oldVersion)),
		slog.Uint64("new_version", uint64(newVersion)),
		slog.Int("batch_size", m.cfg.BatchSize),
	)

	var runErr error
	for _, collection := range m.collections {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		cr, err := m.runCollection(ctx, collection, tenantID, oldVersion, newVersion)
		result.Collections = append(result.Collections, cr)
		if err != nil {
			runErr = err
			break
		}
	}
	result.FinishedAt = m.now().UTC()

	if runErr != nil {
		result.Canceled = true
		m.logger.Warn("re-encryption migration canceled",
			slog.String("tenant_id", tenantID),
			slog.Any("error", runErr),
		)
		return result, runErr
	}

	processed, succeeded, failed, skipped := result.Totals()
	m.logger.Info("re-encryption migration completed",
		slog.String("tenant_id", tenantID),
		slog.Int("processed", processed),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
		slog.Int("skipped", skipped),
	)

	_, err = m.audit.Append(ctx, &auditDomain.Entry{
		TenantID:     tenantID,
		Action:       auditDomain.ActionMigrationCompleted,
		ActorID:      auditDomain.ActorFromContext(ctx),
		ResourceType: "tenant_key",
		ResourceID:   strconv.FormatUint(uint64(newVersion), 10),
		Details: map[string]string{
			"old_version": strconv.FormatUint(uint64(oldVersion), 10),
			"new_version": strconv.FormatUint(uint64(newVersion), 10),
			"collections": strconv.Itoa(len(result.Collections)),
			"processed":   strconv.Itoa(processed),
			"succeeded":   strconv.Itoa(succeeded),
			"failed":      strconv.Itoa(failed),
			"skipped":     strconv.Itoa(skipped),
		},
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

// runCollection migrates one collection. Only context errors are returned;
// storage failures are recorded on the result so later collections still run.
func (m *migrationUseCase) runCollection(
	ctx context.Context,
	collection RecordCollection,
	tenantID string,
	oldVersion, newVersion uint,
) (migrationDomain.CollectionResult, error) {
	name := collection.Name()
	cr := migrationDomain.CollectionResult{Collection: name}
	logger := m.logger.With(slog.String("tenant_id", tenantID), slog.String("collection", name))

	checkpoint, err := m.checkpoints.Get(ctx, tenantID, name, oldVersion, newVersion)
	switch {
	case errors.Is(err, migrationDomain.ErrCheckpointNotFound):
		checkpoint = nil
	case err != nil:
		cr.Error = err.Error()
		logger.Error("failed to load migration checkpoint", slog.Any("error", err))
		return cr, nil
	}
	if checkpoint != nil && !checkpoint.Completed {
		cr.LastCursor = checkpoint.LastCursor
		cr.Resumed = true
	}

	for {
		if err := ctx.Err(); err != nil {
			return cr, err
		}

		records, err := collection.FetchBatch(ctx, tenantID, cr.LastCursor, m.cfg.BatchSize)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return cr, ctxErr
			}
			cr.Error = err.Error()
			logger.Error("failed to fetch migration batch", slog.String("cursor", cr.LastCursor), slog.Any("error", err))
			return cr, nil
		}
		if len(records) == 0 {
			break
		}

		updates, updatedIDs := m.stageBatch(ctx, &cr, name, tenantID, records, newVersion)
		if len(updates) > 0 {
			stale, err := collection.ApplyUpdates(ctx, tenantID, updates)
			if err != nil {
				for _, id := range updatedIDs {
					cr.Failed++
					cr.Errors = append(cr.Errors, migrationDomain.RecordError{
						Collection: name,
						RecordID:   id,
						Message:    err.Error(),
					})
				}
				logger.Error("failed to apply migration batch", slog.Any("error", err))
			} else {
				cr.Succeeded += len(updatedIDs) - len(stale)
				cr.Skipped += len(stale)
				if len(stale) > 0 {
					logger.Warn("records changed during migration were left for the next run",
						slog.Any("record_ids", stale))
				}
			}
		}

		cr.Batches++
		cr.LastCursor = records[len(records)-1].ID
		if err := m.saveCheckpoint(ctx, tenantID, name, oldVersion, newVersion, cr.LastCursor, false); err != nil {
			cr.Error = err.Error()
			logger.Error("failed to save migration checkpoint", slog.Any("error", err))
			return cr, nil
		}

		logger.Debug("migrated batch",
			slog.Int("records", len(records)),
			slog.Int("updates", len(updates)),
			slog.String("cursor", cr.LastCursor),
		)

		if len(records) < m.cfg.BatchSize {
			break
		}
	}

	if err := m.saveCheckpoint(ctx, tenantID, name, oldVersion, newVersion, cr.LastCursor, true); err != nil {
		cr.Error = err.Error()
		logger.Error("failed to save migration checkpoint", slog.Any("error", err))
		return cr, nil
	}
	cr.Completed = true
	return cr, nil
}

// stageBatch computes the updates of a batch. A record with any failing field
// stages nothing and is counted as failed.
func (m *migrationUseCase) stageBatch(
	ctx context.Context,
	cr *migrationDomain.CollectionResult,
	collection, tenantID string,
	records []migrationDomain.Record,
	newVersion uint,
) ([]migrationDomain.FieldUpdate, []string) {
	var updates []migrationDomain.FieldUpdate
	var updatedIDs []string

	for _, record := range records {
		cr.Processed++

		var staged []migrationDomain.FieldUpdate
		var recordErrs []migrationDomain.RecordError
		for field, value := range record.Fields {
			next, changed, err := m.migrateValue(ctx, tenantID, value, newVersion)
			if err != nil {
				recordErrs = append(recordErrs, migrationDomain.RecordError{
					Collection: collection,
					RecordID:   record.ID,
					Field:      field,
					Message:    err.Error(),
				})
				continue
			}
			if changed {
				staged = append(staged, migrationDomain.FieldUpdate{
					RecordID: record.ID,
					Field:    field,
					Previous: value,
					Value:    next,
				})
			}
		}

		switch {
		case len(recordErrs) > 0:
			cr.Failed++
			cr.Errors = append(cr.Errors, recordErrs...)
		case len(staged) == 0:
			cr.Skipped++
		default:
			updates = append(updates, staged...)
			updatedIDs = append(updatedIDs, record.ID)
		}
	}
	return updates, updatedIDs
}

// migrateValue returns value protected under newVersion and whether it
// changed. The envelope tag decides the path: a tagged value that does not
// parse is ErrMalformedEnvelope, never plaintext.
func (m *migrationUseCase) migrateValue(
	ctx context.Context,
	tenantID, value string,
	newVersion uint,
) (string, bool, error) {
	if value == "" {
		return value, false, nil
	}
	version, err := cryptoDomain.EnvelopeVersion(value)
	switch {
	case err == nil && version == newVersion:
		return value, false, nil
	case err != nil && cryptoDomain.HasEnvelopeTag(value):
		return "", false, migrationDomain.ErrMalformedEnvelope
	}

	next, err := m.values.ReEncryptValue(ctx, tenantID, value, newVersion)
	if err != nil {
		return "", false, err
	}
	return next, true, nil
}

// saveCheckpoint records the cursor of one collection.
func (m *migrationUseCase) saveCheckpoint(
	ctx context.Context,
	tenantID, collection string,
	oldVersion, newVersion uint,
	cursor string,
	completed bool,
) error {
	return m.checkpoints.Save(ctx, &migrationDomain.Checkpoint{
		TenantID:   tenantID,
		Collection: collection,
		OldVersion: oldVersion,
		NewVersion: newVersion,
		LastCursor: cursor,
		Completed:  completed,
		UpdatedAt:  m.now().UTC(),
	})
}

// NewMigrationUseCase creates a MigrationUseCase over the given collections,
// processed in order.
//
// Parameters:
//   - collections: Record collections to migrate, in processing order
//   - checkpoints: Cursor storage used to resume canceled runs
//   - values: Re-encrypts single values; the encryption use case
//   - keys: Resolves the active and target key versions
//   - audit: Receives the migration.completed entry
//   - logger: Structured logger for progress and failures
//   - cfg: A BatchSize of zero selects DefaultBatchSize
func NewMigrationUseCase(
	collections []RecordCollection,
	checkpoints CheckpointRepository,
	values ValueReEncrypter,
	keys KeyProvider,
	audit AuditAppender,
	logger *slog.Logger,
	cfg MigrationConfig,
) MigrationUseCase {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &migrationUseCase{
		collections: collections,
		checkpoints: checkpoints,
		values:      values,
		keys:        keys,
		audit:       audit,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}
