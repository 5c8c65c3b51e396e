// Package repository provides data persistence implementations for outbox entities.
package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/outbox/domain"
)

// PostgreSQLOutboxItemRepository handles outbox item persistence for PostgreSQL.
type PostgreSQLOutboxItemRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxItemRepository creates a new PostgreSQLOutboxItemRepository.
func NewPostgreSQLOutboxItemRepository(db *sql.DB) *PostgreSQLOutboxItemRepository {
	return &PostgreSQLOutboxItemRepository{
		db: db,
	}
}

// Create inserts a new outbox item. The insert is idempotent on
// (tenant_id, idempotency_key): a conflicting row leaves the table unchanged
// and Create reports inserted=false. The uniqueness constraint makes this
// atomic with respect to concurrent enqueuers.
func (r *PostgreSQLOutboxItemRepository) Create(ctx context.Context, item *domain.OutboxItem) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_items
			  (id, tenant_id, scope_id, item_type, payload, idempotency_key, status, attempts, next_attempt_at, last_error, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
			  ON CONFLICT (tenant_id, idempotency_key) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, item.ID, item.TenantID, item.ScopeID, item.ItemType,
		item.Payload, item.IdempotencyKey, item.Status, item.Attempts, item.NextAttemptAt, item.LastError)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

// GetDueItems retrieves items whose next attempt is due, oldest first. It also
// picks up items stuck in processing past their backoff window, so a crash
// mid-handler leaves the item retryable rather than lost. Rows are locked with
// SKIP LOCKED so concurrent dispatchers never claim the same batch; callers
// must hold a transaction in the context.
func (r *PostgreSQLOutboxItemRepository) GetDueItems(ctx context.Context, limit int) ([]*domain.OutboxItem, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, tenant_id, scope_id, item_type, payload, idempotency_key, status, attempts, next_attempt_at, last_error, created_at, updated_at
			  FROM outbox_items
			  WHERE status IN ($1, $2) AND next_attempt_at <= NOW()
			  ORDER BY created_at ASC
			  LIMIT $3
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.OutboxItemStatusPending, domain.OutboxItemStatusProcessing, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var items []*domain.OutboxItem
	for rows.Next() {
		item, err := scanOutboxItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// Update updates an outbox item's mutable state.
func (r *PostgreSQLOutboxItemRepository) Update(ctx context.Context, item *domain.OutboxItem) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_items
			  SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4, updated_at = NOW()
			  WHERE id = $5`

	_, err := querier.ExecContext(ctx, query, item.Status, item.Attempts, item.NextAttemptAt,
		item.LastError, item.ID)

	return err
}

// GetByID retrieves an outbox item by its id.
func (r *PostgreSQLOutboxItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxItem, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, tenant_id, scope_id, item_type, payload, idempotency_key, status, attempts, next_attempt_at, last_error, created_at, updated_at
			  FROM outbox_items
			  WHERE id = $1`

	item, err := scanOutboxItem(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}

	return item, nil
}

// GetByIdempotencyKey retrieves an outbox item by (tenant, idempotency key).
func (r *PostgreSQLOutboxItemRepository) GetByIdempotencyKey(
	ctx context.Context,
	tenantID uuid.UUID,
	key string,
) (*domain.OutboxItem, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, tenant_id, scope_id, item_type, payload, idempotency_key, status, attempts, next_attempt_at, last_error, created_at, updated_at
			  FROM outbox_items
			  WHERE tenant_id = $1 AND idempotency_key = $2`

	item, err := scanOutboxItem(querier.QueryRowContext(ctx, query, tenantID, key))
	if err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}

	return item, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxItem(row rowScanner) (*domain.OutboxItem, error) {
	var item domain.OutboxItem

	err := row.Scan(&item.ID, &item.TenantID, &item.ScopeID, &item.ItemType, &item.Payload,
		&item.IdempotencyKey, &item.Status, &item.Attempts, &item.NextAttemptAt, &item.LastError,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &item, nil
}
