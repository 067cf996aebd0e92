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

const stateColumns = `tenant_id, status, flagged_at, first_bad_entry_id, first_bad_sequence, kind,
		anchor_sequence, anchor_hash, updated_at`

// PostgreSQLStateRepository implements LedgerState persistence for PostgreSQL.
//
// One row per tenant in audit_ledger_states holds the tamper flag
// (status, flagged_at, first_bad_entry_id, first_bad_sequence, kind) and the
// purge anchor (anchor_sequence, anchor_hash). A tenant without a row has a
// clean ledger anchored at GenesisHash.
type PostgreSQLStateRepository struct {
	db *sql.DB
}

// Get returns the stored state of tenantID.
//
// Parameters:
//   - ctx: Context for cancellation and transaction propagation
//   - tenantID: Ledger owner
//
// Returns:
//   - The stored state, or auditDomain.NewLedgerState(tenantID) when the
//     tenant has no row yet
//   - An error if the query fails
func (p *PostgreSQLStateRepository) Get(ctx context.Context, tenantID string) (*auditDomain.LedgerState, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + stateColumns + ` FROM audit_ledger_states WHERE tenant_id = $1`

	var (
		state          auditDomain.LedgerState
		firstBadID     uuid.NullUUID
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
	if firstBadID.Valid {
		state.FirstBadEntryID = &firstBadID.UUID
	}
	state.FirstBadSequence = uint64(firstBadSeq)
	state.AnchorSequence = uint64(anchorSequence)
	return &state, nil
}

// Upsert inserts the tenant state or replaces every column of the existing
// row with INSERT ... ON CONFLICT (tenant_id) DO UPDATE.
func (p *PostgreSQLStateRepository) Upsert(ctx context.Context, state *auditDomain.LedgerState) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO audit_ledger_states (` + stateColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  ON CONFLICT (tenant_id) DO UPDATE SET
			      status = EXCLUDED.status,
			      flagged_at = EXCLUDED.flagged_at,
			      first_bad_entry_id = EXCLUDED.first_bad_entry_id,
			      first_bad_sequence = EXCLUDED.first_bad_sequence,
			      kind = EXCLUDED.kind,
			      anchor_sequence = EXCLUDED.anchor_sequence,
			      anchor_hash = EXCLUDED.anchor_hash,
			      updated_at = EXCLUDED.updated_at`

	var firstBadID uuid.NullUUID
	if state.FirstBadEntryID != nil {
		firstBadID = uuid.NullUUID{UUID: *state.FirstBadEntryID, Valid: true}
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

// NewPostgreSQLStateRepository creates a new PostgreSQL ledger state repository.
func NewPostgreSQLStateRepository(db *sql.DB) *PostgreSQLStateRepository {
	return &PostgreSQLStateRepository{db: db}
}
