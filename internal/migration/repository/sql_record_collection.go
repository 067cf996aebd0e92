// Package repository implements migration record collections and checkpoint
// persistence for PostgreSQL, MySQL and memory.
//
// # Record Collections
//
// A record collection exposes the protected text columns of one application
// table to the migration engine. SQLRecordCollection is configured with the
// table, id column, tenant column and field names; identifiers are checked
// against a strict pattern before they are interpolated into SQL, and every
// value travels as a bound parameter.
//
// # Compare-And-Set Writes
//
// The engine reads a batch, re-encrypts it in memory and writes it back.
// Every write is UPDATE ... WHERE field = <value read>, so a value changed by
// the application in between is never overwritten. Such records are reported
// back to the engine and counted as skipped; the next run picks them up.
//
// # Checkpoints
//
// A checkpoint stores the last record id migrated per (tenant, collection,
// old version, new version). A canceled run resumes after that id.
//
// # Usage Example
//
//	clients, err := repository.NewPostgreSQLRecordCollection(db, repository.SQLCollectionConfig{
//	    Table:  "clients",
//	    Fields: []string{"ssn", "notes"},
//	})
//	checkpoints := repository.NewPostgreSQLCheckpointRepository(db)
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/allisson/casevault/internal/database"
	apperrors "github.com/allisson/casevault/internal/errors"
	migrationDomain "github.com/allisson/casevault/internal/migration/domain"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLCollectionConfig describes a table carrying protected text columns. The
// ID column must sort in the order records are migrated, e.g. a UUIDv7 stored
// as text or an integer.
type SQLCollectionConfig struct {
	// Name identifies the collection in checkpoints. Defaults to Table.
	Name         string
	Table        string
	IDColumn     string
	TenantColumn string
	Fields       []string
}

// SQLRecordCollection is a RecordCollection over one SQL table. Batches are
// read in ascending id order and written back in one transaction per batch.
type SQLRecordCollection struct {
	db          *sql.DB
	txManager   database.TxManager
	cfg         SQLCollectionConfig
	placeholder func(n int) string
}

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func questionPlaceholder(int) string { return "?" }

// Name implements RecordCollection.
func (s *SQLRecordCollection) Name() string {
	return s.cfg.Name
}

// FetchBatch returns up to limit rows of the tenant ordered by ID.
//
// Parameters:
//   - ctx: Context for cancellation and transaction propagation
//   - tenantID: Only rows of this tenant are read
//   - afterID: Cursor from the previous batch; empty starts at the beginning
//   - limit: Maximum number of rows
//
// Returns:
//   - Records with every configured field; NULL columns become empty strings
//   - An error if the query or a scan fails
func (s *SQLRecordCollection) FetchBatch(
	ctx context.Context,
	tenantID, afterID string,
	limit int,
) ([]migrationDomain.Record, error) {
	querier := database.GetTx(ctx, s.db)

	columns := append([]string{s.cfg.IDColumn}, s.cfg.Fields...)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = %s`,
		strings.Join(columns, ", "), s.cfg.Table, s.cfg.TenantColumn, s.placeholder(1))
	args := []any{tenantID}
	if afterID != "" {
		query += fmt.Sprintf(` AND %s > %s`, s.cfg.IDColumn, s.placeholder(2))
		args = append(args, afterID)
	}
	query += fmt.Sprintf(` ORDER BY %s ASC LIMIT %s`, s.cfg.IDColumn, s.placeholder(len(args)+1))
	args = append(args, limit)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to fetch %s batch", s.cfg.Name)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []migrationDomain.Record
	for rows.Next() {
		var id string
		values := make([]sql.NullString, len(s.cfg.Fields))
		dest := make([]any, 0, len(columns))
		dest = append(dest, &id)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, apperrors.Wrapf(err, "failed to scan %s record", s.cfg.Name)
		}

		fields := make(map[string]string, len(s.cfg.Fields))
		for i, field := range s.cfg.Fields {
			fields[field] = values[i].String
		}
		records = append(records, migrationDomain.Record{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrapf(err, "failed to iterate %s records", s.cfg.Name)
	}
	return records, nil
}

// ApplyUpdates writes the batch in one transaction. Each UPDATE only matches
// while the column still holds the value that was read.
//
// Parameters:
//   - ctx: Context for the transaction
//   - tenantID: Tenant owning every updated row
//   - updates: Compare-and-set updates staged from one fetched batch
//
// Returns:
//   - The IDs of records with at least one update that matched no row, in
//     the order they were first seen
//   - ErrInvalidCollection when an update names a field outside the collection
//   - An error if any UPDATE fails; the whole batch is rolled back
func (s *SQLRecordCollection) ApplyUpdates(
	ctx context.Context,
	tenantID string,
	updates []migrationDomain.FieldUpdate,
) ([]string, error) {
	for _, u := range updates {
		if !slices.Contains(s.cfg.Fields, u.Field) {
			return nil, apperrors.Wrapf(migrationDomain.ErrInvalidCollection, "unknown field %q", u.Field)
		}
	}

	var stale []string
	err := s.txManager.WithTx(ctx, func(ctx context.Context) error {
		stale = stale[:0]
		querier := database.GetTx(ctx, s.db)
		for _, u := range updates {
			query := fmt.Sprintf(`UPDATE %s SET %s = %s WHERE %s = %s AND %s = %s AND %s = %s`,
				s.cfg.Table,
				u.Field, s.placeholder(1),
				s.cfg.TenantColumn, s.placeholder(2),
				s.cfg.IDColumn, s.placeholder(3),
				u.Field, s.placeholder(4),
			)
			result, err := querier.ExecContext(ctx, query, u.Value, tenantID, u.RecordID, u.Previous)
			if err != nil {
				return apperrors.Wrapf(err, "failed to update %s record %s", s.cfg.Name, u.RecordID)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return apperrors.Wrapf(err, "failed to update %s record %s", s.cfg.Name, u.RecordID)
			}
			if affected == 0 && !slices.Contains(stale, u.RecordID) {
				stale = append(stale, u.RecordID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stale, nil
}

// newSQLRecordCollection applies defaults and rejects unsafe identifiers.
func newSQLRecordCollection(
	db *sql.DB,
	cfg SQLCollectionConfig,
	placeholder func(int) string,
) (*SQLRecordCollection, error) {
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	if cfg.TenantColumn == "" {
		cfg.TenantColumn = "tenant_id"
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Table
	}
	if len(cfg.Fields) == 0 {
		return nil, apperrors.Wrapf(migrationDomain.ErrInvalidCollection, "%s has no fields", cfg.Table)
	}
	for _, ident := range append([]string{cfg.Table, cfg.IDColumn, cfg.TenantColumn}, cfg.Fields...) {
		if !identifierPattern.MatchString(ident) {
			return nil, apperrors.Wrapf(migrationDomain.ErrInvalidCollection, "unsafe identifier %q", ident)
		}
	}
	cfg.Fields = slices.Clone(cfg.Fields)

	return &SQLRecordCollection{
		db:          db,
		txManager:   database.NewTxManager(db),
		cfg:         cfg,
		placeholder: placeholder,
	}, nil
}

// NewPostgreSQLRecordCollection creates a collection using $n placeholders.
func NewPostgreSQLRecordCollection(db *sql.DB, cfg SQLCollectionConfig) (*SQLRecordCollection, error) {
	return newSQLRecordCollection(db, cfg, dollarPlaceholder)
}

// NewMySQLRecordCollection creates a collection using ? placeholders.
func NewMySQLRecordCollection(db *sql.DB, cfg SQLCollectionConfig) (*SQLRecordCollection, error) {
	return newSQLRecordCollection(db, cfg, questionPlaceholder)
}
