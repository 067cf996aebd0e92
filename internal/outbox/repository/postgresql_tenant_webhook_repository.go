package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/casevault/internal/database"
	apperrors "github.com/allisson/casevault/internal/errors"
	"github.com/allisson/casevault/internal/outbox/domain"
)

const tenantWebhookColumns = `tenant_id, url, secret, enabled, created_at, updated_at`

// PostgreSQLTenantWebhookRepository handles tenant webhook persistence for PostgreSQL.
type PostgreSQLTenantWebhookRepository struct {
	db *sql.DB
}

// Get returns the tenant's webhook or ErrTenantWebhookNotFound. The secret is
// returned as stored; callers derive the signing key from it.
func (r *PostgreSQLTenantWebhookRepository) Get(ctx context.Context, tenantID string) (*domain.TenantWebhook, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + tenantWebhookColumns + ` FROM tenant_webhooks WHERE tenant_id = $1`

	var w domain.TenantWebhook
	err := querier.QueryRowContext(ctx, query, tenantID).
		Scan(&w.TenantID, &w.URL, &w.Secret, &w.Enabled, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTenantWebhookNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get tenant webhook")
	}
	return &w, nil
}

// Upsert creates or replaces the tenant's webhook. On replace created_at keeps
// its original value.
func (r *PostgreSQLTenantWebhookRepository) Upsert(ctx context.Context, w *domain.TenantWebhook) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO tenant_webhooks (` + tenantWebhookColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (tenant_id) DO UPDATE SET
			      url = EXCLUDED.url,
			      secret = EXCLUDED.secret,
			      enabled = EXCLUDED.enabled,
			      updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(ctx, query, w.TenantID, w.URL, w.Secret, w.Enabled, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert tenant webhook")
	}
	return nil
}

// NewPostgreSQLTenantWebhookRepository creates a PostgreSQLTenantWebhookRepository.
func NewPostgreSQLTenantWebhookRepository(db *sql.DB) *PostgreSQLTenantWebhookRepository {
	return &PostgreSQLTenantWebhookRepository{db: db}
}
