// Package repository implements audit ledger persistence for PostgreSQL, MySQL
// and memory.
//
// # Key Components
//
// The package includes repositories for:
//   - Entry: One hash-chained ledger entry per audited event
//   - LedgerState: The per-tenant flag, first bad entry and purge anchor
//
// # Database Support
//
// Each repository type has three implementations:
//   - PostgreSQL: Native UUID, JSONB details and TIMESTAMPTZ columns
//   - MySQL: BINARY(16) UUIDs, JSON details and DATETIME(6) columns
//   - Memory: Maps guarded by a mutex, for tests and the memory driver
//
// # Transaction Support
//
// All SQL repositories pick up the transaction carried by ctx through
// database.GetTx, so the ledger use case can read the head, insert the next
// entry and update the state atomically.
//
// # Sequence Conflicts
//
// The (tenant_id, sequence) unique constraint is the cross-process guard of
// the chain. A violation is translated to auditDomain.ErrSequenceConflict so
// the use case can retry against the new head instead of failing the append.
//
// # Usage Example
//
//	entries := repository.NewPostgreSQLEntryRepository(db)
//	states := repository.NewPostgreSQLStateRepository(db)
//
//	err := txManager.WithTx(ctx, func(txCtx context.Context) error {
//	    latest, err := entries.Latest(txCtx, "tenant-a")
//	    if err != nil && !errors.Is(err, auditDomain.ErrEntryNotFound) {
//	        return err
//	    }
//	    return entries.Create(txCtx, next(latest))
//	})
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	"github.com/allisson/casevault/internal/database"
	apperrors "github.com/allisson/casevault/internal/errors"
)

const entryColumns = `id, tenant_id, sequence, action, actor_id, resource_type, resource_id, details,
		created_at, previous_hash, hash, locked, locked_at`

// PostgreSQLEntryRepository implements ledger entry persistence for PostgreSQL.
//
// Database schema requirements:
//   - id: UUID PRIMARY KEY
//   - tenant_id: VARCHAR(255), with sequence BIGINT UNIQUE per tenant
//   - action, actor_id, resource_type, resource_id: VARCHAR
//   - details: JSONB object of string values
//   - created_at: TIMESTAMPTZ, stored at microsecond precision
//   - previous_hash, hash: VARCHAR(128) hex digests
//   - locked: BOOLEAN and locked_at: nullable TIMESTAMPTZ
//
// Entries are immutable apart from the lock columns; nothing in this
// repository rewrites hashed content.
type PostgreSQLEntryRepository struct {
	db *sql.DB
}

// Create inserts an entry into the tenant ledger.
//
// Parameters:
//   - ctx: Context for cancellation and transaction propagation
//   - entry: A fully populated entry, including Sequence and both hashes
//
// Returns:
//   - ErrSequenceConflict when the (tenant_id, sequence) pair already exists
//   - An error if details cannot be encoded or the insert fails
func (p *PostgreSQLEntryRepository) Create(ctx context.Context, entry *auditDomain.Entry) error {
	querier := database.GetTx(ctx, p.db)

	details, err := marshalDetails(entry.Details)
	if err != nil {
		return err
	}

	query := `INSERT INTO audit_entries (` + entryColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = querier.ExecContext(
		ctx,
		query,
		entry.ID,
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
func (p *PostgreSQLEntryRepository) Get(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
) (*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + entryColumns + ` FROM audit_entries WHERE tenant_id = $1 AND id = $2`

	entry, err := scanPostgreSQLEntry(querier.QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auditDomain.ErrEntryNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get audit entry")
	}
	return entry, nil
}

// Latest returns the entry with the highest sequence. Inside a transaction the
// row is locked so a concurrent appender in another process waits.
func (p *PostgreSQLEntryRepository) Latest(ctx context.Context, tenantID string) (*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + entryColumns + ` FROM audit_entries
			  WHERE tenant_id = $1 ORDER BY sequence DESC LIMIT 1 FOR UPDATE`

	entry, err := scanPostgreSQLEntry(querier.QueryRowContext(ctx, query, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auditDomain.ErrEntryNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get latest audit entry")
	}
	return entry, nil
}

// ListRange returns entries with fromSeq <= sequence <= toSeq in ascending
// sequence order, at most limit of them. A toSeq of zero means unbounded.
func (p *PostgreSQLEntryRepository) ListRange(
	ctx context.Context,
	tenantID string,
	fromSeq, toSeq uint64,
	limit int,
) ([]*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + entryColumns + ` FROM audit_entries
			  WHERE tenant_id = $1 AND sequence BETWEEN $2 AND $3
			  ORDER BY sequence ASC LIMIT $4`

	rows, err := querier.QueryContext(ctx, query, tenantID, fromSeq, upperBound(toSeq), limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit entries")
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*auditDomain.Entry
	for rows.Next() {
		entry, err := scanPostgreSQLEntry(rows)
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

// LockFrom marks unlocked entries from fromSeq on as locked and returns how
// many rows changed. Entries already locked keep their original LockedAt.
func (p *PostgreSQLEntryRepository) LockFrom(
	ctx context.Context,
	tenantID string,
	fromSeq uint64,
	lockedAt time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE audit_entries SET locked = TRUE, locked_at = $1
			  WHERE tenant_id = $2 AND sequence >= $3 AND locked = FALSE`

	result, err := querier.ExecContext(ctx, query, lockedAt, tenantID, fromSeq)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to lock audit entries")
	}
	return result.RowsAffected()
}

// ListTenants returns every tenant with entries or a ledger state.
func (p *PostgreSQLEntryRepository) ListTenants(ctx context.Context) ([]string, error) {
	return listTenants(ctx, database.GetTx(ctx, p.db))
}

// DeleteThrough removes entries with sequence <= throughSeq and returns the
// number of deleted rows. The caller archives them first.
func (p *PostgreSQLEntryRepository) DeleteThrough(
	ctx context.Context,
	tenantID string,
	throughSeq uint64,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM audit_entries WHERE tenant_id = $1 AND sequence <= $2`

	result, err := querier.ExecContext(ctx, query, tenantID, throughSeq)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit entries")
	}
	return result.RowsAffected()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgreSQLEntry(row rowScanner) (*auditDomain.Entry, error) {
	var (
		entry    auditDomain.Entry
		sequence int64
		details  []byte
		lockedAt sql.NullTime
	)
	err := row.Scan(
		&entry.ID,
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
	entry.Sequence = uint64(sequence)
	if entry.Details, err = unmarshalDetails(details); err != nil {
		return nil, err
	}
	if lockedAt.Valid {
		entry.LockedAt = &lockedAt.Time
	}
	return &entry, nil
}

// upperBound maps an unbounded (zero) range end to the largest sequence.
func upperBound(toSeq uint64) uint64 {
	if toSeq == 0 {
		return math.MaxInt64
	}
	return toSeq
}

// marshalDetails encodes Details as a JSON object; nil becomes {}.
func marshalDetails(details map[string]string) ([]byte, error) {
	if details == nil {
		details = map[string]string{}
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal audit details")
	}
	return b, nil
}

func unmarshalDetails(b []byte) (map[string]string, error) {
	var details map[string]string
	if err := json.Unmarshal(b, &details); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal audit details")
	}
	if len(details) == 0 {
		return nil, nil
	}
	return details, nil
}

// listTenants returns the union of tenants with entries and tenants with a
// ledger state, so a fully purged ledger is still swept.
func listTenants(ctx context.Context, querier database.Querier) ([]string, error) {
	query := `SELECT tenant_id FROM audit_entries
			  UNION
			  SELECT tenant_id FROM audit_ledger_states
			  ORDER BY tenant_id`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list ledger tenants")
	}
	defer func() {
		_ = rows.Close()
	}()

	var tenants []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan ledger tenant")
		}
		tenants = append(tenants, tenantID)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list ledger tenants")
	}
	return tenants, nil
}

// NewPostgreSQLEntryRepository creates a new PostgreSQL ledger entry repository.
func NewPostgreSQLEntryRepository(db *sql.DB) *PostgreSQLEntryRepository {
	return &PostgreSQLEntryRepository{db: db}
}
