// Package repository implements TenantKey persistence for PostgreSQL, MySQL
// and memory.
//
// # Key Components
//
// A TenantKey row is one version of a tenant's data encryption key. Only the
// wrapped form of the key is stored; unwrapping goes through the KMS in the
// crypto service layer and never happens here.
//
// # Database Support
//
// Each repository type has three implementations:
//   - PostgreSQL: Native UUID and BYTEA, plus a partial unique index that
//     allows one active row per tenant
//   - MySQL: BINARY(16) UUIDs and BLOB key material
//   - Memory: Maps guarded by a mutex enforcing the same uniqueness rules
//
// # Versioning
//
// Versions are dense per tenant and start at 1. Rotation deactivates the
// current version and inserts version+1 in one transaction. Retired versions
// are kept forever so old envelopes stay readable.
//
// # Transaction Support
//
// Every method picks up the transaction carried by ctx through
// database.GetTx. GetActiveForUpdate is only meaningful inside a transaction,
// where it holds the active row until commit.
//
// # Usage Example
//
//	repo := repository.NewPostgreSQLTenantKeyRepository(db)
//
//	err := txManager.WithTx(ctx, func(txCtx context.Context) error {
//	    current, err := repo.GetActiveForUpdate(txCtx, "tenant-a")
//	    if err != nil {
//	        return err
//	    }
//	    if err := repo.Deactivate(txCtx, "tenant-a", current.Version, time.Now().UTC()); err != nil {
//	        return err
//	    }
//	    return repo.Create(txCtx, next)
//	})
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
	"github.com/allisson/casevault/internal/database"
	apperrors "github.com/allisson/casevault/internal/errors"
)

const tenantKeyColumns = `id, tenant_id, version, algorithm, master_key_id, wrapped_key, is_active, created_at, rotated_at`

// PostgreSQLTenantKeyRepository implements TenantKey persistence for PostgreSQL.
//
// Database schema requirements:
//   - id: UUID PRIMARY KEY
//   - tenant_id: VARCHAR(255) with version INTEGER, UNIQUE per tenant
//   - algorithm, master_key_id: VARCHAR
//   - wrapped_key: BYTEA holding the KMS-wrapped DEK
//   - is_active: BOOLEAN, at most one TRUE row per tenant (partial index)
//   - created_at: TIMESTAMPTZ and rotated_at: nullable TIMESTAMPTZ
type PostgreSQLTenantKeyRepository struct {
	db *sql.DB
}

// Create inserts a new key version.
//
// Parameters:
//   - ctx: Context for cancellation and transaction propagation
//   - key: The version to insert, with WrappedKey set and Key left empty
//
// Returns:
//   - ErrKeyAlreadyExists when the version exists or another row of the
//     tenant is already active
//   - An error if the insert fails
func (p *PostgreSQLTenantKeyRepository) Create(ctx context.Context, key *cryptoDomain.TenantKey) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO tenant_keys (` + tenantKeyColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(
		ctx,
		query,
		key.ID,
		key.TenantID,
		key.Version,
		key.Algorithm,
		key.MasterKeyID,
		key.WrappedKey,
		key.IsActive,
		key.CreatedAt,
		key.RotatedAt,
	)
	if database.IsUniqueViolation(err) {
		return cryptoDomain.ErrKeyAlreadyExists
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to create tenant key")
	}
	return nil
}

// Deactivate retires the active version and stamps rotatedAt.
//
// Returns ErrKeyVersionNotFound when version is not the tenant's active
// version, which is how a rotation that lost a race is detected.
func (p *PostgreSQLTenantKeyRepository) Deactivate(
	ctx context.Context,
	tenantID string,
	version uint,
	rotatedAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE tenant_keys SET is_active = FALSE, rotated_at = $1
			  WHERE tenant_id = $2 AND version = $3 AND is_active = TRUE`

	result, err := querier.ExecContext(ctx, query, rotatedAt, tenantID, version)
	if err != nil {
		return apperrors.Wrap(err, "failed to deactivate tenant key")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to deactivate tenant key")
	}
	if rows == 0 {
		return cryptoDomain.ErrKeyVersionNotFound
	}
	return nil
}

// GetActive returns the active version for the tenant.
func (p *PostgreSQLTenantKeyRepository) GetActive(
	ctx context.Context,
	tenantID string,
) (*cryptoDomain.TenantKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + tenantKeyColumns + ` FROM tenant_keys
			  WHERE tenant_id = $1 AND is_active = TRUE`

	key, err := scanPostgreSQLTenantKey(querier.QueryRowContext(ctx, query, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cryptoDomain.ErrKeyNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get active tenant key")
	}
	return key, nil
}

// GetActiveForUpdate returns the active version and locks its row until the
// surrounding transaction ends. Outside a transaction the lock is released
// immediately, so callers run it through TxManager.
func (p *PostgreSQLTenantKeyRepository) GetActiveForUpdate(
	ctx context.Context,
	tenantID string,
) (*cryptoDomain.TenantKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + tenantKeyColumns + ` FROM tenant_keys
			  WHERE tenant_id = $1 AND is_active = TRUE FOR UPDATE`

	key, err := scanPostgreSQLTenantKey(querier.QueryRowContext(ctx, query, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cryptoDomain.ErrKeyNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock active tenant key")
	}
	return key, nil
}

// GetByVersion returns one version for the tenant.
func (p *PostgreSQLTenantKeyRepository) GetByVersion(
	ctx context.Context,
	tenantID string,
	version uint,
) (*cryptoDomain.TenantKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + tenantKeyColumns + ` FROM tenant_keys
			  WHERE tenant_id = $1 AND version = $2`

	key, err := scanPostgreSQLTenantKey(querier.QueryRowContext(ctx, query, tenantID, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cryptoDomain.ErrKeyVersionNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get tenant key version")
	}
	return key, nil
}

// ListByTenant returns every version, newest first.
func (p *PostgreSQLTenantKeyRepository) ListByTenant(
	ctx context.Context,
	tenantID string,
) ([]*cryptoDomain.TenantKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + tenantKeyColumns + ` FROM tenant_keys
			  WHERE tenant_id = $1 ORDER BY version DESC`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list tenant keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []*cryptoDomain.TenantKey
	for rows.Next() {
		key, err := scanPostgreSQLTenantKey(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan tenant key")
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list tenant keys")
	}
	return keys, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgreSQLTenantKey(row rowScanner) (*cryptoDomain.TenantKey, error) {
	var (
		key       cryptoDomain.TenantKey
		version   int64
		rotatedAt sql.NullTime
	)
	err := row.Scan(
		&key.ID,
		&key.TenantID,
		&version,
		&key.Algorithm,
		&key.MasterKeyID,
		&key.WrappedKey,
		&key.IsActive,
		&key.CreatedAt,
		&rotatedAt,
	)
	if err != nil {
		return nil, err
	}
	key.Version = uint(version)
	if rotatedAt.Valid {
		key.RotatedAt = &rotatedAt.Time
	}
	return &key, nil
}

// NewPostgreSQLTenantKeyRepository creates a new PostgreSQL TenantKey repository.
func NewPostgreSQLTenantKeyRepository(db *sql.DB) *PostgreSQLTenantKeyRepository {
	return &PostgreSQLTenantKeyRepository{db: db}
}
