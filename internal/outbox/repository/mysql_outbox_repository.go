package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/casevault/internal/database"
	apperrors "github.com/allisson/casevault/internal/errors"
	"github.com/allisson/casevault/internal/outbox/domain"
)

// MySQLOutboxEventRepository stores outbox events in MySQL. IDs are kept in
// BINARY(16) columns.
type MySQLOutboxEventRepository struct {
	db *sql.DB
}

// NewMySQLOutboxEventRepository creates a MySQLOutboxEventRepository.
func NewMySQLOutboxEventRepository(db *sql.DB) *MySQLOutboxEventRepository {
	return &MySQLOutboxEventRepository{db: db}
}

// Create inserts event in the transaction carried by ctx.
func (r *MySQLOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	query := `INSERT INTO outbox_events (` + outboxColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := database.GetTx(ctx, r.db).ExecContext(ctx, query,
		event.ID[:],
		event.EventType,
		event.Payload,
		event.Status,
		event.Retries,
		event.LastError,
		event.ProcessedAt,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox event")
	}
	return nil
}

// GetPendingEvents locks up to limit pending events in commit order. Rows
// already claimed by another worker are skipped (SKIP LOCKED needs MySQL 8.0).
func (r *MySQLOutboxEventRepository) GetPendingEvents(
	ctx context.Context,
	limit int,
) ([]*domain.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + `
			  FROM outbox_events
			  WHERE status = ?
			  ORDER BY created_at, id
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := database.GetTx(ctx, r.db).QueryContext(ctx, query, domain.OutboxEventStatusPending, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending outbox events")
	}
	defer rows.Close() //nolint:errcheck

	var events []*domain.OutboxEvent
	for rows.Next() {
		event, err := scanMySQLOutboxEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox events")
	}
	return events, nil
}

// Update persists the delivery state of event.
func (r *MySQLOutboxEventRepository) Update(ctx context.Context, event *domain.OutboxEvent) error {
	query := `UPDATE outbox_events
			  SET status = ?, retries = ?, last_error = ?, processed_at = ?, updated_at = ?
			  WHERE id = ?`

	result, err := database.GetTx(ctx, r.db).ExecContext(ctx, query,
		event.Status,
		event.Retries,
		event.LastError,
		event.ProcessedAt,
		event.UpdatedAt,
		event.ID[:],
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox event")
	}
	return requireOneRow(result, event)
}

// scanMySQLOutboxEvent reads one outbox_events row and converts the BINARY(16) id.
func scanMySQLOutboxEvent(row rowScanner) (*domain.OutboxEvent, error) {
	var (
		event   domain.OutboxEvent
		idBytes []byte
	)
	err := row.Scan(
		&idBytes,
		&event.EventType,
		&event.Payload,
		&event.Status,
		&event.Retries,
		&event.LastError,
		&event.ProcessedAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to scan outbox event")
	}
	if err := event.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse outbox event id")
	}
	return &event, nil
}
