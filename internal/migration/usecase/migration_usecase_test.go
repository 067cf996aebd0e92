package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/secrets/localsecrets"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
	cryptoRepository "github.com/allisson/casevault/internal/crypto/repository"
	cryptoService "github.com/allisson/casevault/internal/crypto/service"
	cryptoUseCase "github.com/allisson/casevault/internal/crypto/usecase"
	"github.com/allisson/casevault/internal/database"
	encryptionUseCase "github.com/allisson/casevault/internal/encryption/usecase"
	migrationDomain "github.com/allisson/casevault/internal/migration/domain"
	migrationRepository "github.com/allisson/casevault/internal/migration/repository"
)

// recordingAuditAppender collects appended entries.
type recordingAuditAppender struct {
	mu      sync.Mutex
	entries []*auditDomain.Entry
}

func (r *recordingAuditAppender) Append(_ context.Context, entry *auditDomain.Entry) (*auditDomain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *recordingAuditAppender) byAction(action auditDomain.Action) []*auditDomain.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*auditDomain.Entry
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// cancelAfterCollection cancels the run once a number of batches were applied.
type cancelAfterCollection struct {
	*migrationRepository.MemoryRecordCollection
	cancel  context.CancelFunc
	applied int
	after   int
}

func (c *cancelAfterCollection) ApplyUpdates(
	ctx context.Context,
	tenantID string,
	updates []migrationDomain.FieldUpdate,
) ([]string, error) {
	stale, err := c.MemoryRecordCollection.ApplyUpdates(ctx, tenantID, updates)
	c.applied++
	if c.applied == c.after {
		c.cancel()
	}
	return stale, err
}

// editingCollection overwrites one record after each fetch, the way a
// caseworker saving a form mid-migration would.
type editingCollection struct {
	*migrationRepository.MemoryRecordCollection
	tenantID string
	record   migrationDomain.Record
}

func (e *editingCollection) FetchBatch(
	ctx context.Context,
	tenantID, afterID string,
	limit int,
) ([]migrationDomain.Record, error) {
	records, err := e.MemoryRecordCollection.FetchBatch(ctx, tenantID, afterID, limit)
	if err == nil && len(records) > 0 {
		e.Put(e.tenantID, e.record)
	}
	return records, err
}

// failingCollection fails every fetch.
type failingCollection struct {
	name string
	err  error
}

func (f *failingCollection) Name() string { return f.name }

func (f *failingCollection) FetchBatch(context.Context, string, string, int) ([]migrationDomain.Record, error) {
	return nil, f.err
}

func (f *failingCollection) ApplyUpdates(context.Context, string, []migrationDomain.FieldUpdate) ([]string, error) {
	return nil, nil
}

type migrationHarness struct {
	keys        cryptoUseCase.TenantKeyUseCase
	encryption  encryptionUseCase.EncryptionUseCase
	checkpoints *migrationRepository.MemoryCheckpointRepository
	audit       *recordingAuditAppender
	logger      *slog.Logger
}

func newMigrationHarness(t *testing.T) *migrationHarness {
	t.Helper()

	secret, err := localsecrets.NewRandomKey()
	require.NoError(t, err)
	keeper := localsecrets.NewKeeper(secret)
	t.Cleanup(func() { _ = keeper.Close() })

	h := &migrationHarness{
		checkpoints: migrationRepository.NewMemoryCheckpointRepository(),
		audit:       &recordingAuditAppender{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.keys = cryptoUseCase.NewTenantKeyUseCase(
		database.NewLocalTxManager(),
		cryptoRepository.NewMemoryTenantKeyRepository(),
		cryptoService.NewKeyWrapper(keeper, "local-master", 0),
		cryptoService.NewTTLKeyCache(time.Minute),
		h.audit,
		h.logger,
		cryptoUseCase.TenantKeyConfig{},
	)
	h.encryption = encryptionUseCase.NewEncryptionUseCase(h.keys, cryptoService.NewAEADManager(), h.audit, h.logger)
	return h
}

func (h *migrationHarness) useCase(batchSize int, collections ...RecordCollection) MigrationUseCase {
	return NewMigrationUseCase(collections, h.checkpoints, h.encryption, h.keys, h.audit, h.logger, MigrationConfig{
		BatchSize: batchSize,
	})
}

// seed stores n client records with v1 ciphertext for ssn and plaintext notes.
func (h *migrationHarness) seed(
	t *testing.T,
	collection *migrationRepository.MemoryRecordCollection,
	tenantID string,
	n int,
) map[string]string {
	t.Helper()
	plaintexts := make(map[string]string, n)
	for i := range n {
		id := fmt.Sprintf("rec-%03d", i)
		ssn := fmt.Sprintf("ssn:%03d-00-0000", i)
		ciphertext, err := h.encryption.EncryptValue(context.Background(), tenantID, ssn)
		require.NoError(t, err)
		collection.Put(tenantID, migrationDomain.Record{ID: id, Fields: map[string]string{
			"ssn":   ciphertext,
			"notes": "notes " + id,
		}})
		plaintexts[id] = ssn
	}
	return plaintexts
}

func envelopeVersion(t *testing.T, value string) uint {
	t.Helper()
	version, err := cryptoDomain.EnvelopeVersion(value)
	require.NoError(t, err)
	return version
}

func TestMigrationUseCase_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_ReEncryptsEveryRecord", func(t *testing.T) {
		h := newMigrationHarness(t)
		clients := migrationRepository.NewMemoryRecordCollection("clients")
		plaintexts := h.seed(t, clients, "tenant-a", 25)
		_, err := h.keys.RotateKey(ctx, "tenant-a")
		require.NoError(t, err)

		result, err := h.useCase(10, clients).Run(ctx, "tenant-a", 1, 2)
		require.NoError(t, err)
		require.Len(t, result.Collections, 1)

		cr := result.Collections[0]
		assert.Equal(t, 25, cr.Processed)
		assert.Equal(t, 25, cr.Succeeded)
		assert.Zero(t, cr.Failed)
		assert.Equal(t, 3, cr.Batches)
		assert.Equal(t, "rec-024", cr.LastCursor)
		assert.True(t, cr.Completed)
		assert.False(t, result.Canceled)

		for id, want := range plaintexts {
			record, ok := clients.Get("tenant-a", id)
			require.True(t, ok)
			assert.Equal(t, uint(2), envelopeVersion(t, record.Fields["ssn"]))
			assert.Equal(t, uint(2), envelopeVersion(t, record.Fields["notes"]))

			ssn, err := h.encryption.DecryptValue(ctx, "tenant-a", record.Fields["ssn"])
			require.NoError(t, err)
			assert.Equal(t, want, ssn)
			notes, err := h.encryption.DecryptValue(ctx, "tenant-a", record.Fields["notes"])
			require.NoError(t, err)
			assert.Equal(t, "notes "+id, notes)
		}

		completed := h.audit.byAction(auditDomain.ActionMigrationCompleted)
		require.Len(t, completed, 1)
		assert.Equal(t, "25", completed[0].Details["succeeded"])
		assert.Equal(t, "2", completed[0].Details["new_version"])
	})

	t.Run("Success_SecondRunIsIdempotent", func(t *testing.T) {
		h := newMigrationHarness(t)
		clients := migrationRepository.NewMemoryRecordCollection("clients")
		h.seed(t, clients, "tenant-a", 7)
		_, err := h.keys.RotateKey(ctx, "tenant-a")
		require.NoError(t, err)

		useCase := h.useCase(3, clients)
		_, err = useCase.Run(ctx, "tenant-a", 1, 2)
		require.NoError(t, err)
		before, _ := clients.Get("tenant-a", "rec-004")

		result, err := useCase.Run(ctx, "tenant-a", 1, 2)
		require.NoError(t, err)
		cr := result.Collections[0]
		assert.Equal(t, 7, cr.Processed)
		assert.Equal(t, 7, cr.Skipped)
		assert.Zero(t, cr.Succeeded)
		assert.Zero(t, cr.Failed)
		assert.Empty(t, cr.Errors)

		after, _ := clients.Get("tenant-a", "rec-004")
		assert.Equal(t, before, after)
	})

	t.Run("Success_PerRecordFailureDoesNotAbort", func(t *testing.T) {
		h := newMigrationHarness(t)
		clients := migrationRepository.NewMemoryRecordCollection("clients")
		h.seed(t, clients, "tenant-a", 4)
		clients.Put("tenant-a", migrationDomain.Record{ID: "rec-001", Fields: map[string]string{
			"ssn": "cvenc:v1:1:not-base64!",
		}})
		clients.Put("tenant-a", migrationDomain.Record{ID: "rec-002", Fields: map[string]string{
			"ssn": "cvenc:v1:9:" + "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		}})
		_, err := h.keys.RotateKey(ctx, "tenant-a")
		require.NoError(t, err)

		result, err := h.useCase(2, clients).Run(ctx, "tenant-a", 1, 2)
		require.NoError(t, err)
		cr := result.Collections[0]
		assert.Equal(t, 4, cr.Processed)
		assert.Equal(t, 2, cr.Succeeded)
		assert.Equal(t, 2, cr.Failed)
		require.Len(t, cr.Errors, 2)
		assert.Equal(t, "rec-001", cr.Errors[0].RecordID)
		assert.Equal(t, "ssn", cr.Errors[0].Field)
		assert.Contains(t, cr.Errors[0].Message, "malformed envelope")
		assert.Equal(t, "rec-002", cr.Errors[1].RecordID)
		assert.True(t, cr.Completed)

		record, _ := clients.Get("tenant-a", "rec-003")
		assert.Equal(t, uint(2), envelopeVersion(t, record.Fields["ssn"]))
		untouched, _ := clients.Get("tenant-a", "rec-001")
		assert.Equal(t, "cvenc:v1:1:not-base64!", untouched.Fields["ssn"])
	})

	t.Run("Success_CollectionsAreIndependent", func(t *testing.T) {
		h := newMigrationHarness(t)
		broken := &failingCollection{name: "transcripts", err: errors.New("connection reset")}
		clients := migrationRepository.NewMemoryRecordCollection("clients")
		h.seed(t, clients, "tenant-a", 3)
		_, err := h.keys.RotateKey(ctx, "tenant-a")
		require.NoError(t, err)

		result, err := h.useCase(10, broken, clients).Run(ctx, "tenant-a", 1, 2)
		require.NoError(t, err)
		require.Len(t, result.Collections, 2)
		assert.Equal(t, "connection reset", result.Collections[0].Error)
		assert.False(t, result.Collections[0].Completed)
		assert.Equal(t, 3, result.Collections[1].Succeeded)
		assert.True(t, result.Collections[1].Completed)
	})

	t.Run("Success_OtherTenantsUntouched", func(t *testing.T) {
		h := newMigrationHarness(t)
		clients := migrationRepository.NewMemoryRecordCollection("clients")
		h.seed(t, clients, "tenant-a", 2)
		h.seed(t, clients, "tenant-b", 2)
		before, _ := clients.Get("tenant-b", "rec-000")
		_, err := h.keys.RotateKey(ctx, "tenant-a")
		require.NoError(t, err)

		_, err = h.useCase(10, clients).Run(ctx, "tenant-a", 1, 2)
		require.NoError(t, err)

		after, _ := clients.Get("tenant-b", "rec-000")
		assert.Equal(t, before, after)
	})

	t.Run("Success_CancelBetweenBatchesAndResume", func(t *testing.T) {
		h := newMigrationHarness(t)
		memory := migrationRepository.NewMemoryRecordCollection("clients")
		plaintexts := h.seed(t, memory, "tenant-a", 10)
		_, err := h.keys.RotateKey(ctx, "tenant-a")
		require.NoError(t, err)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		clients := &cancelAfterCollection{MemoryRecordCollection: memory, cancel: cancel, after: 2}

		result, err := h.useCase(3, clients).Run(runCtx, "tenant-a", 1, 2)
		require.ErrorIs(t, err, context.Canceled)
		assert.True(t, result.Canceled)
		cr := result.Collections[0]
		assert.Equal(t, 2, cr.Batches)
		assert.Equal(t, "rec-005", cr.LastCursor)
		assert.False(t, cr.Completed)
		assert.Empty(t, h.audit.byAction(auditDomain.ActionMigrationCompleted))

		checkpoint, err := h.checkpoints.Get(ctx, "tenant-a", "clients", 1, 2)
		require.NoError(t, err)
		assert.Equal(t, "rec-005", checkpoint.LastCursor)
		assert.False(t, checkpoint.Completed)

		pending, _ := memory.Get("tenant-a", "rec-006")
		assert.Equal(t, uint(1), envelopeVersion(t, pending.Fields["ssn"]))

		resumed, err := h.useCase(3, memory).Run(ctx, "tenant-a", 1, 2)
		require.NoError(t, err)
		rc := resumed.Collections[0]
		assert.True(t, rc.Resumed)
		assert.Equal(t, 4, rc.Processed)
		assert.True(t, rc.Completed)

		for id, want := range plaintexts {
			record, _ := memory.Get("tenant-a", id)
			assert.Equal(t, uint(2), envelopeVersion(t, record.Fields["ssn"]))
			ssn, err := h.encryption.DecryptValue(ctx, "tenant-a", record.Fields["ssn"])
			require.NoError(t, err)
			assert.Equal(t, want, ssn)
		}
	})

	t.Run("Success_ConcurrentWriteIsNotOverwritten", func(t *testing.T) {
		h := newMigrationHarness(t)
		clients := migrationRepository.NewMemoryRecordCollection("clients")
		h.seed(t, clients, "tenant-a", 1)
		_, err := h.keys.RotateKey(ctx, "tenant-a")
		require.NoError(t, err)

		records, err := clients.FetchBatch(ctx, "tenant-a", "", 10)
		require.NoError(t, err)
		fresh, err := h.encryption.EncryptValue(ctx, "tenant-a", "updated by caseworker")
		require.NoError(t, err)
		clients.Put("tenant-a", migrationDomain.Record{ID: "rec-000", Fields: map[string]string{
			"ssn":   fresh,
			"notes": records[0].Fields["notes"],
		}})

		stale, err := clients.ApplyUpdates(ctx, "tenant-a", []migrationDomain.FieldUpdate{{
			RecordID: "rec-000",
			Field:    "ssn",
			Previous: records[0].Fields["ssn"],
			Value:    "stale",
		}})
		require.NoError(t, err)
		assert.Equal(t, []string{"rec-000"}, stale)

		record, _ := clients.Get("tenant-a", "rec-000")
		assert.Equal(t, fresh, record.Fields["ssn"])
	})

	t.Run("Success_RecordChangedMidBatchCountedSkipped", func(t *testing.T) {
		h := newMigrationHarness(t)
		clients := migrationRepository.NewMemoryRecordCollection("clients")
		h.seed(t, clients, "tenant-a", 3)
		_, err := h.keys.RotateKey(ctx, "tenant-a")
		require.NoError(t, err)

		edited, err := h.encryption.EncryptValue(ctx, "tenant-a", "edited ssn")
		require.NoError(t, err)
		collection := &editingCollection{
			MemoryRecordCollection: clients,
			tenantID:               "tenant-a",
			record: migrationDomain.Record{ID: "rec-001", Fields: map[string]string{
				"ssn":   edited,
				"notes": "edited notes",
			}},
		}

		result, err := h.useCase(10, collection).Run(ctx, "tenant-a", 1, 2)
		require.NoError(t, err)
		cr := result.Collections[0]
		assert.Equal(t, 3, cr.Processed)
		assert.Equal(t, 2, cr.Succeeded)
		assert.Equal(t, 1, cr.Skipped)
		assert.Zero(t, cr.Failed)

		record, _ := clients.Get("tenant-a", "rec-001")
		assert.Equal(t, edited, record.Fields["ssn"])
		assert.Equal(t, "edited notes", record.Fields["notes"])

		completed := h.audit.byAction(auditDomain.ActionMigrationCompleted)
		require.Len(t, completed, 1)
		assert.Equal(t, "2", completed[0].Details["succeeded"])
		assert.Equal(t, "1", completed[0].Details["skipped"])
	})

	t.Run("Error_InvalidArguments", func(t *testing.T) {
		h := newMigrationHarness(t)
		useCase := h.useCase(10)

		_, err := useCase.Run(ctx, "", 1, 2)
		assert.ErrorIs(t, err, migrationDomain.ErrInvalidTenantID)
		_, err = useCase.Run(ctx, "tenant-a", 2, 2)
		assert.ErrorIs(t, err, migrationDomain.ErrInvalidVersions)
		_, err = useCase.Run(ctx, "tenant-a", 0, 0)
		assert.ErrorIs(t, err, migrationDomain.ErrInvalidVersions)
	})

	t.Run("Error_UnknownTargetVersion", func(t *testing.T) {
		h := newMigrationHarness(t)
		clients := migrationRepository.NewMemoryRecordCollection("clients")
		h.seed(t, clients, "tenant-a", 1)

		_, err := h.useCase(10, clients).Run(ctx, "tenant-a", 1, 2)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyVersionNotFound)
	})
}

func TestMigrationUseCase_RunInitialEncryption(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_EncryptsLegacyPlaintext", func(t *testing.T) {
		h := newMigrationHarness(t)
		intake := migrationRepository.NewMemoryRecordCollection("intake_forms")
		intake.Put("tenant-a", migrationDomain.Record{ID: "1", Fields: map[string]string{"dob": "1980-01-01", "phone": ""}})
		intake.Put("tenant-a", migrationDomain.Record{ID: "2", Fields: map[string]string{"dob": "1990-02-02"}})

		result, err := h.useCase(10, intake).RunInitialEncryption(ctx, "tenant-a")
		require.NoError(t, err)
		assert.Equal(t, uint(0), result.OldVersion)
		assert.Equal(t, uint(1), result.NewVersion)
		assert.Equal(t, 2, result.Collections[0].Succeeded)

		record, _ := intake.Get("tenant-a", "1")
		assert.True(t, cryptoService.IsEncrypted(record.Fields["dob"]))
		assert.Equal(t, "", record.Fields["phone"])
		dob, err := h.encryption.DecryptValue(ctx, "tenant-a", record.Fields["dob"])
		require.NoError(t, err)
		assert.Equal(t, "1980-01-01", dob)
	})

	t.Run("Error_MalformedTaggedValueNotEncrypted", func(t *testing.T) {
		h := newMigrationHarness(t)
		intake := migrationRepository.NewMemoryRecordCollection("intake_forms")
		intake.Put("tenant-a", migrationDomain.Record{ID: "1", Fields: map[string]string{"dob": "cvenc:v1:1:truncated"}})
		intake.Put("tenant-a", migrationDomain.Record{ID: "2", Fields: map[string]string{"dob": "1990-02-02"}})

		result, err := h.useCase(10, intake).RunInitialEncryption(ctx, "tenant-a")
		require.NoError(t, err)
		cr := result.Collections[0]
		assert.Equal(t, 1, cr.Succeeded)
		assert.Equal(t, 1, cr.Failed)
		require.Len(t, cr.Errors, 1)
		assert.Equal(t, "1", cr.Errors[0].RecordID)
		assert.Contains(t, cr.Errors[0].Message, "malformed envelope")

		damaged, _ := intake.Get("tenant-a", "1")
		assert.Equal(t, "cvenc:v1:1:truncated", damaged.Fields["dob"])
		encrypted, _ := intake.Get("tenant-a", "2")
		assert.True(t, cryptoService.IsEncrypted(encrypted.Fields["dob"]))
	})

	t.Run("Error_EmptyTenant", func(t *testing.T) {
		h := newMigrationHarness(t)

		_, err := h.useCase(10).RunInitialEncryption(ctx, "")
		assert.ErrorIs(t, err, migrationDomain.ErrInvalidTenantID)
	})
}
