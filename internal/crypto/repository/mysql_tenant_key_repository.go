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

// MySQLTenantKeyRepository implements TenantKey persistence for MySQL.
// UUIDs are stored as BINARY(16).
//
// MySQL has no partial indexes, so the one-active-row rule is kept by the
// rotation transaction: GetActiveForUpdate locks the active row before it is
// deactivated and the next version inserted.
type MySQLTenantKeyRepository struct {
	db *sql.DB
}

// Create inserts a new key version. Unique violations map to ErrKeyAlreadyExists.
func (m *MySQLTenantKeyRepository) Create(ctx context.Context, key *cryptoDomain.TenantKey) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO tenant_keys (` + tenantKeyColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id, err := key.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal tenant key id")
	}

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
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

// Deactivate retires the active version and stamps rotatedAt. It returns
// ErrKeyVersionNotFound when version is not the tenant's active version.
func (m *MySQLTenantKeyRepository) Deactivate(
	ctx context.Context,
	tenantID string,
	version uint,
	rotatedAt time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE tenant_keys SET is_active = FALSE, rotated_at = ?
			  WHERE tenant_id = ? AND version = ? AND is_active = TRUE`

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
func (m *MySQLTenantKeyRepository) GetActive(
	ctx context.Context,
	tenantID string,
) (*cryptoDomain.TenantKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + tenantKeyColumns + ` FROM tenant_keys
			  WHERE tenant_id = ? AND is_active = TRUE`

	key, err := scanMySQLTenantKey(querier.QueryRowContext(ctx, query, tenantID))
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
func (m *MySQLTenantKeyRepository) GetActiveForUpdate(
	ctx context.Context,
	tenantID string,
) (*cryptoDomain.TenantKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + tenantKeyColumns + ` FROM tenant_keys
			  WHERE tenant_id = ? AND is_active = TRUE FOR UPDATE`

	key, err := scanMySQLTenantKey(querier.QueryRowContext(ctx, query, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cryptoDomain.ErrKeyNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock active tenant key")
	}
	return key, nil
}

// GetByVersion returns one version for the tenant.
func (m *MySQLTenantKeyRepository) GetByVersion(
	ctx context.Context,
	tenantID string,
	version uint,
) (*cryptoDomain.TenantKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + tenantKeyColumns + ` FROM tenant_keys
			  WHERE tenant_id = ? AND version = ?`

	key, err := scanMySQLTenantKey(querier.QueryRowContext(ctx, query, tenantID, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cryptoDomain.ErrKeyVersionNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get tenant key version")
	}
	return key, nil
}

// ListByTenant returns every version, newest first.
func (m *MySQLTenantKeyRepository) ListByTenant(
	ctx context.Context,
	tenantID string,
) ([]*cryptoDomain.TenantKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + tenantKeyColumns + ` FROM tenant_keys
			  WHERE tenant_id = ? ORDER BY version DESC`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list tenant keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []*cryptoDomain.TenantKey
	for rows.Next() {
		key, err := scanMySQLTenantKey(rows)
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

// scanMySQLTenantKey reads one tenant_keys row. The id is BINARY(16) and the
// version an unsigned column scanned through int64.
func scanMySQLTenantKey(row rowScanner) (*cryptoDomain.TenantKey, error) {
	var (
		key       cryptoDomain.TenantKey
		id        []byte
		version   int64
		rotatedAt sql.NullTime
	)
	err := row.Scan(
		&id,
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
	if err := key.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal tenant key id")
	}
	key.Version = uint(version)
	if rotatedAt.Valid {
		key.RotatedAt = &rotatedAt.Time
	}
	return &key, nil
}

// NewMySQLTenantKeyRepository creates a new MySQL TenantKey repository.
func NewMySQLTenantKeyRepository(db *sql.DB) *MySQLTenantKeyRepository {
	return &MySQLTenantKeyRepository{db: db}
}
