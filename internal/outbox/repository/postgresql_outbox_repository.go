// Package repository persists outbox events and tenant webhook endpoints.
//
// # Key Components
//
// The package includes repositories for:
//   - OutboxEvent: A notification written in the same transaction as the
//     change that caused it and delivered later by the outbox worker
//   - TenantWebhook: The endpoint and signing secret a tenant receives
//     tamper alerts on
//
// # Database Support
//
// PostgreSQL and MySQL implementations share the same schema shape. UUIDs are
// native in PostgreSQL and BINARY(16) in MySQL. Memory implementations back
// the memory driver and the use case tests.
//
// # Claiming Events
//
// GetPendingEvents reads pending rows FOR UPDATE SKIP LOCKED inside the
// worker's transaction. Several workers can poll the same table and each
// event is handed to exactly one of them until its transaction ends.
//
// # Usage Example
//
//	repo := repository.NewPostgreSQLOutboxEventRepository(db)
//
//	err := txManager.WithTx(ctx, func(txCtx context.Context) error {
//	    events, err := repo.GetPendingEvents(txCtx, 10)
//	    if err != nil {
//	        return err
//	    }
//	    for _, event := range events {
//	        event.MarkDelivered(time.Now().UTC())
//	        if err := repo.Update(txCtx, event); err != nil {
//	            return err
//	        }
//	    }
//	    return nil
//	})
package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/casevault/internal/database"
	apperrors "github.com/allisson/casevault/internal/errors"
	"github.com/allisson/casevault/internal/outbox/domain"
)

const outboxColumns = `id, event_type, payload, status, retries, last_error, processed_at, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgreSQLOutboxEventRepository stores outbox events in PostgreSQL.
//
// Database schema requirements:
//   - id: UUID PRIMARY KEY (UUIDv7, so ids sort by creation)
//   - event_type: VARCHAR(255) and payload: TEXT holding JSON
//   - status: VARCHAR(16), one of pending, processed or failed
//   - retries: INTEGER and last_error: nullable TEXT
//   - processed_at, created_at, updated_at: TIMESTAMPTZ
//   - An index on (status, created_at) for the pending scan
type PostgreSQLOutboxEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxEventRepository creates a PostgreSQLOutboxEventRepository.
func NewPostgreSQLOutboxEventRepository(db *sql.DB) *PostgreSQLOutboxEventRepository {
	return &PostgreSQLOutboxEventRepository{db: db}
}

// Create inserts event in the transaction carried by ctx.
func (r *PostgreSQLOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	query := `INSERT INTO outbox_events (` + outboxColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := database.GetTx(ctx, r.db).ExecContext(ctx, query,
		event.ID,
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

// GetPendingEvents locks up to limit pending events in commit order.
//
// Parameters:
//   - ctx: Must carry the worker's transaction; the row locks last until it
//     ends
//   - limit: Maximum number of events to claim
//
// Returns:
//   - Pending events ordered by created_at then id; rows already claimed by
//     another worker are skipped
//   - An error if the query or a scan fails
func (r *PostgreSQLOutboxEventRepository) GetPendingEvents(
	ctx context.Context,
	limit int,
) ([]*domain.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + `
			  FROM outbox_events
			  WHERE status = $1
			  ORDER BY created_at, id
			  LIMIT $2
			  FOR UPDATE SKIP LOCKED`

	rows, err := database.GetTx(ctx, r.db).QueryContext(ctx, query, domain.OutboxEventStatusPending, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending outbox events")
	}
	defer rows.Close() //nolint:errcheck

	var events []*domain.OutboxEvent
	for rows.Next() {
		event, err := scanPostgreSQLOutboxEvent(rows)
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

// Update persists the delivery state of event: status, retries, last error
// and timestamps. It returns apperrors.ErrNotFound when the row is gone.
func (r *PostgreSQLOutboxEventRepository) Update(ctx context.Context, event *domain.OutboxEvent) error {
	query := `UPDATE outbox_events
			  SET status = $1, retries = $2, last_error = $3, processed_at = $4, updated_at = $5
			  WHERE id = $6`

	result, err := database.GetTx(ctx, r.db).ExecContext(ctx, query,
		event.Status,
		event.Retries,
		event.LastError,
		event.ProcessedAt,
		event.UpdatedAt,
		event.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox event")
	}
	return requireOneRow(result, event)
}

// scanPostgreSQLOutboxEvent reads one outbox_events row.
func scanPostgreSQLOutboxEvent(row rowScanner) (*domain.OutboxEvent, error) {
	var event domain.OutboxEvent
	err := row.Scan(
		&event.ID,
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
	return &event, nil
}

// requireOneRow turns an UPDATE that matched nothing into ErrNotFound.
func requireOneRow(result sql.Result, event *domain.OutboxEvent) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox event")
	}
	if affected == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "outbox event %s", event.ID)
	}
	return nil
}
