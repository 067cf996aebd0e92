package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	"github.com/allisson/casevault/internal/database"
	apperrors "github.com/allisson/casevault/internal/errors"
)

// MySQLStateRepository implements LedgerState persistence for MySQL.
type MySQLStateRepository struct {
	db *sql.DB
}

// Get returns the stored state or a fresh clean state.
//
// The first bad entry id is stored as BINARY(16) and is NULL while the ledger
// is clean. Sequences are stored as signed BIGINT and converted on the way out.
//
// Parameters:
//   - ctx: Carries the transaction, if any
//   - tenantID: The ledger whose head to read
//
// Returns:
//   - The ledger state; a tenant without a row gets NewLedgerState
//   - An error if the query fails or the stored id is malformed
func (m *MySQLStateRepository) Get(ctx context.Context, tenantID string) (*auditDomain.LedgerState, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + stateColumns + ` FROM audit_ledger_states WHERE tenant_id = ?`

	var (
		state          auditDomain.LedgerState
		firstBadID     []byte
		firstBadSeq    int64
		anchorSequence int64
		flaggedAt      sql.NullTime
	)
	err := querier.QueryRowContext(ctx, query, tenantID).Scan(
		&state.TenantID,
		&state.Status,
		&flaggedAt,
		&firstBadID,
		&firstBadSeq,
		&state.Kind,
		&anchorSequence,
		&state.AnchorHash,
		&state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return auditDomain.NewLedgerState(tenantID), nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get ledger state")
	}

	if flaggedAt.Valid {
		state.FlaggedAt = &flaggedAt.Time
	}
	if len(firstBadID) > 0 {
		var id uuid.UUID
		if err := id.UnmarshalBinary(firstBadID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal first bad entry id")
		}
		state.FirstBadEntryID = &id
	}
	state.FirstBadSequence = uint64(firstBadSeq)
	state.AnchorSequence = uint64(anchorSequence)
	return &state, nil
}

// Upsert inserts the tenant state or replaces the existing row with
// INSERT ... ON DUPLICATE KEY UPDATE.
func (m *MySQLStateRepository) Upsert(ctx context.Context, state *auditDomain.LedgerState) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO audit_ledger_states (` + stateColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			      status = VALUES(status),
			      flagged_at = VALUES(flagged_at),
			      first_bad_entry_id = VALUES(first_bad_entry_id),
			      first_bad_sequence = VALUES(first_bad_sequence),
			      kind = VALUES(kind),
			      anchor_sequence = VALUES(anchor_sequence),
			      anchor_hash = VALUES(anchor_hash),
			      updated_at = VALUES(updated_at)`

	var firstBadID []byte
	if state.FirstBadEntryID != nil {
		var err error
		if firstBadID, err = state.FirstBadEntryID.MarshalBinary(); err != nil {
			return apperrors.Wrap(err, "failed to marshal first bad entry id")
		}
	}

	_, err := querier.ExecContext(
		ctx,
		query,
		state.TenantID,
		state.Status,
		state.FlaggedAt,
		firstBadID,
		state.FirstBadSequence,
		state.Kind,
		state.AnchorSequence,
		state.AnchorHash,
		state.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert ledger state")
	}
	return nil
}

// NewMySQLStateRepository creates a new MySQL ledger state repository.
func NewMySQLStateRepository(db *sql.DB) *MySQLStateRepository {
	return &MySQLStateRepository{db: db}
}
