package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/casevault/internal/database"
	apperrors "github.com/allisson/casevault/internal/errors"
	"github.com/allisson/casevault/internal/outbox/domain"
)

// MySQLTenantWebhookRepository handles tenant webhook persistence for MySQL.
type MySQLTenantWebhookRepository struct {
	db *sql.DB
}

// Get returns the tenant's webhook or ErrTenantWebhookNotFound. The secret is
// returned as stored; callers derive the signing key from it.
func (r *MySQLTenantWebhookRepository) Get(ctx context.Context, tenantID string) (*domain.TenantWebhook, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + tenantWebhookColumns + ` FROM tenant_webhooks WHERE tenant_id = ?`

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
func (r *MySQLTenantWebhookRepository) Upsert(ctx context.Context, w *domain.TenantWebhook) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO tenant_webhooks (` + tenantWebhookColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			      url = VALUES(url),
			      secret = VALUES(secret),
			      enabled = VALUES(enabled),
			      updated_at = VALUES(updated_at)`

	_, err := querier.ExecContext(ctx, query, w.TenantID, w.URL, w.Secret, w.Enabled, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert tenant webhook")
	}
	return nil
}

// NewMySQLTenantWebhookRepository creates a MySQLTenantWebhookRepository.
func NewMySQLTenantWebhookRepository(db *sql.DB) *MySQLTenantWebhookRepository {
	return &MySQLTenantWebhookRepository{db: db}
}
