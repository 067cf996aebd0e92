package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/casevault/internal/database"
	apperrors "github.com/allisson/casevault/internal/errors"
	migrationDomain "github.com/allisson/casevault/internal/migration/domain"
)

// MySQLCheckpointRepository persists migration checkpoints in MySQL.
type MySQLCheckpointRepository struct {
	db *sql.DB
}

// Get returns the checkpoint of one collection.
func (p *MySQLCheckpointRepository) Get(
	ctx context.Context,
	tenantID, collection string,
	oldVersion, newVersion uint,
) (*migrationDomain.Checkpoint, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + checkpointColumns + ` FROM migration_checkpoints
			  WHERE tenant_id = ? AND collection = ? AND old_version = ? AND new_version = ?`

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

// Save upserts the checkpoint.
func (p *MySQLCheckpointRepository) Save(ctx context.Context, c *migrationDomain.Checkpoint) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO migration_checkpoints (` + checkpointColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE last_cursor = VALUES(last_cursor),
			                          completed = VALUES(completed),
			                          updated_at = VALUES(updated_at)`

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

// NewMySQLCheckpointRepository creates a MySQLCheckpointRepository.
func NewMySQLCheckpointRepository(db *sql.DB) *MySQLCheckpointRepository {
	return &MySQLCheckpointRepository{db: db}
}
