package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/casevault/internal/database"
	apperrors "github.com/allisson/casevault/internal/errors"
	migrationDomain "github.com/allisson/casevault/internal/migration/domain"
)

const checkpointColumns = `tenant_id, collection, old_version, new_version, last_cursor, completed, updated_at`

// PostgreSQLCheckpointRepository persists migration checkpoints in PostgreSQL.
//
// Database schema requirements:
//   - PRIMARY KEY (tenant_id, collection, old_version, new_version)
//   - last_cursor: VARCHAR(255), the id of the last migrated record
//   - completed: BOOLEAN, set once the collection was fully migrated
//   - updated_at: TIMESTAMPTZ
type PostgreSQLCheckpointRepository struct {
	db *sql.DB
}

// Get returns the checkpoint of one collection, or ErrCheckpointNotFound when
// the collection was never started for this version pair.
func (p *PostgreSQLCheckpointRepository) Get(
	ctx context.Context,
	tenantID, collection string,
	oldVersion, newVersion uint,
) (*migrationDomain.Checkpoint, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + checkpointColumns + ` FROM migration_checkpoints
			  WHERE tenant_id = $1 AND collection = $2 AND old_version = $3 AND new_version = $4`

	var c migrationDomain.Checkpoint
	err := querier.QueryRowContext(ctx, query, tenantID, collection, oldVersion, newVersion).Scan(
		&c.TenantID,
		&c.Collection,
		&c.OldVersion,
		&c.NewVersion,
		&c.LastCursor,
		&c.Completed,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, migrationDomain.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get migration checkpoint")
	}
	return &c, nil
}

// Save upserts the checkpoint; only the cursor, completed flag and
// updated_at change on conflict.
func (p *PostgreSQLCheckpointRepository) Save(ctx context.Context, c *migrationDomain.Checkpoint) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO migration_checkpoints (` + checkpointColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (tenant_id, collection, old_version, new_version)
			  DO UPDATE SET last_cursor = EXCLUDED.last_cursor,
			                completed = EXCLUDED.completed,
			                updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		c.TenantID,
		c.Collection,
		c.OldVersion,
		c.NewVersion,
		c.LastCursor,
		c.Completed,
		c.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to save migration checkpoint")
	}
	return nil
}

// NewPostgreSQLCheckpointRepository creates a PostgreSQLCheckpointRepository.
func NewPostgreSQLCheckpointRepository(db *sql.DB) *PostgreSQLCheckpointRepository {
	return &PostgreSQLCheckpointRepository{db: db}
}
