package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	"github.com/allisson/casevault/internal/database"
	apperrors "github.com/allisson/casevault/internal/errors"
)

// MySQLEntryRepository implements ledger entry persistence for MySQL.
//
// Database schema requirements:
//   - id: BINARY(16) PRIMARY KEY holding the UUID bytes
//   - tenant_id with sequence BIGINT, UNIQUE per tenant
//   - details: JSON object of string values
//   - created_at, locked_at: DATETIME(6)
//   - previous_hash, hash: VARCHAR(128) hex digests
//
// The DSN must set parseTime=true so DATETIME columns scan into time.Time.
type MySQLEntryRepository struct {
	db *sql.DB
}

// Create inserts an entry into the tenant ledger.
//
// MySQL reports a duplicate (tenant_id, sequence) as error 1062, which is
// translated to ErrSequenceConflict so the appender can retry.
//
// Parameters:
//   - ctx: Context for cancellation and transaction propagation
//   - entry: A fully populated entry, including Sequence and both hashes
//
// Returns:
//   - ErrSequenceConflict on a duplicate sequence
//   - An error if details cannot be encoded or the insert fails
func (m *MySQLEntryRepository) Create(ctx context.Context, entry *auditDomain.Entry) error {
	querier := database.GetTx(ctx, m.db)

	id, err := entry.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit entry id")
	}
	details, err := marshalDetails(entry.Details)
	if err != nil {
		return err
	}

	query := `INSERT INTO audit_entries (` + entryColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		entry.TenantID,
		entry.Sequence,
		entry.Action,
		entry.ActorID,
		entry.ResourceType,
		entry.ResourceID,
		details,
		entry.CreatedAt,
		entry.PreviousHash,
		entry.Hash,
		entry.Locked,
		entry.LockedAt,
	)
	if database.IsUniqueViolation(err) {
		return auditDomain.ErrSequenceConflict
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit entry")
	}
	return nil
}

// Get returns one entry of the tenant ledger.
func (m *MySQLEntryRepository) Get(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
) (*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal audit entry id")
	}

	query := `SELECT ` + entryColumns + ` FROM audit_entries WHERE tenant_id = ? AND id = ?`

	entry, err := scanMySQLEntry(querier.QueryRowContext(ctx, query, tenantID, idBytes))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auditDomain.ErrEntryNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get audit entry")
	}
	return entry, nil
}

// Latest returns the entry with the highest sequence. Inside a transaction
// the row is read FOR UPDATE, so an appender in another process waits for
// the current append to commit.
func (m *MySQLEntryRepository) Latest(ctx context.Context, tenantID string) (*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + entryColumns + ` FROM audit_entries
			  WHERE tenant_id = ? ORDER BY sequence DESC LIMIT 1 FOR UPDATE`

	entry, err := scanMySQLEntry(querier.QueryRowContext(ctx, query, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auditDomain.ErrEntryNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get latest audit entry")
	}
	return entry, nil
}

// ListRange returns entries in ascending sequence order.
func (m *MySQLEntryRepository) ListRange(
	ctx context.Context,
	tenantID string,
	fromSeq, toSeq uint64,
	limit int,
) ([]*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + entryColumns + ` FROM audit_entries
			  WHERE tenant_id = ? AND sequence BETWEEN ? AND ?
			  ORDER BY sequence ASC LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, tenantID, fromSeq, upperBound(toSeq), limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit entries")
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*auditDomain.Entry
	for rows.Next() {
		entry, err := scanMySQLEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit entry")
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit entries")
	}
	return entries, nil
}

// LockFrom marks unlocked entries from fromSeq on as locked.
func (m *MySQLEntryRepository) LockFrom(
	ctx context.Context,
	tenantID string,
	fromSeq uint64,
	lockedAt time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE audit_entries SET locked = TRUE, locked_at = ?
			  WHERE tenant_id = ? AND sequence >= ? AND locked = FALSE`

	result, err := querier.ExecContext(ctx, query, lockedAt, tenantID, fromSeq)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to lock audit entries")
	}
	return result.RowsAffected()
}

// ListTenants returns every tenant with entries or a ledger state.
func (m *MySQLEntryRepository) ListTenants(ctx context.Context) ([]string, error) {
	return listTenants(ctx, database.GetTx(ctx, m.db))
}

// DeleteThrough removes entries with sequence <= throughSeq.
func (m *MySQLEntryRepository) DeleteThrough(
	ctx context.Context,
	tenantID string,
	throughSeq uint64,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM audit_entries WHERE tenant_id = ? AND sequence <= ?`

	result, err := querier.ExecContext(ctx, query, tenantID, throughSeq)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit entries")
	}
	return result.RowsAffected()
}

// scanMySQLEntry converts the BINARY(16) id back into a uuid.UUID.
func scanMySQLEntry(row rowScanner) (*auditDomain.Entry, error) {
	var (
		entry    auditDomain.Entry
		id       []byte
		sequence int64
		details  []byte
		lockedAt sql.NullTime
	)
	err := row.Scan(
		&id,
		&entry.TenantID,
		&sequence,
		&entry.Action,
		&entry.ActorID,
		&entry.ResourceType,
		&entry.ResourceID,
		&details,
		&entry.CreatedAt,
		&entry.PreviousHash,
		&entry.Hash,
		&entry.Locked,
		&lockedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := entry.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal audit entry id")
	}
	entry.Sequence = uint64(sequence)
	if entry.Details, err = unmarshalDetails(details); err != nil {
		return nil, err
	}
	if lockedAt.Valid {
		entry.LockedAt = &lockedAt.Time
	}
	return &entry, nil
}

// NewMySQLEntryRepository creates a new MySQL ledger entry repository.
func NewMySQLEntryRepository(db *sql.DB) *MySQLEntryRepository {
	return &MySQLEntryRepository{db: db}
}
