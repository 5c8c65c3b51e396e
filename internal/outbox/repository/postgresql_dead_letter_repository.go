package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/outbox/domain"
)

// PostgreSQLDeadLetterRepository handles dead-letter item persistence for PostgreSQL.
type PostgreSQLDeadLetterRepository struct {
	db *sql.DB
}

// NewPostgreSQLDeadLetterRepository creates a new PostgreSQLDeadLetterRepository.
func NewPostgreSQLDeadLetterRepository(db *sql.DB) *PostgreSQLDeadLetterRepository {
	return &PostgreSQLDeadLetterRepository{
		db: db,
	}
}

// Create inserts a new dead-letter item.
func (r *PostgreSQLDeadLetterRepository) Create(ctx context.Context, item *domain.DeadLetterItem) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO dead_letter_items
			  (id, tenant_id, outbox_item_id, item_type, payload, reason, failed_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.ExecContext(ctx, query, item.ID, item.TenantID, item.OutboxItemID,
		item.ItemType, item.Payload, item.Reason, item.FailedAt)

	return err
}

// List retrieves dead-letter items across all tenants for ops review, newest first.
func (r *PostgreSQLDeadLetterRepository) List(ctx context.Context, offset, limit int) ([]*domain.DeadLetterItem, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, tenant_id, outbox_item_id, item_type, payload, reason, failed_at, replayed_at, replayed_by
			  FROM dead_letter_items
			  ORDER BY failed_at DESC
			  OFFSET $1
			  LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var items []*domain.DeadLetterItem
	for rows.Next() {
		var item domain.DeadLetterItem
		err := rows.Scan(&item.ID, &item.TenantID, &item.OutboxItemID, &item.ItemType,
			&item.Payload, &item.Reason, &item.FailedAt, &item.ReplayedAt, &item.ReplayedBy)
		if err != nil {
			return nil, err
		}
		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// GetByID retrieves a dead-letter item by its id.
func (r *PostgreSQLDeadLetterRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetterItem, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, tenant_id, outbox_item_id, item_type, payload, reason, failed_at, replayed_at, replayed_by
			  FROM dead_letter_items
			  WHERE id = $1`

	var item domain.DeadLetterItem
	err := querier.QueryRowContext(ctx, query, id).Scan(&item.ID, &item.TenantID, &item.OutboxItemID,
		&item.ItemType, &item.Payload, &item.Reason, &item.FailedAt, &item.ReplayedAt, &item.ReplayedBy)
	if err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}

	return &item, nil
}

// MarkReplayed stamps a dead-letter item with the replay time and actor.
func (r *PostgreSQLDeadLetterRepository) MarkReplayed(
	ctx context.Context,
	id uuid.UUID,
	replayedAt time.Time,
	replayedBy string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE dead_letter_items
			  SET replayed_at = $1, replayed_by = $2
			  WHERE id = $3`

	_, err := querier.ExecContext(ctx, query, replayedAt, replayedBy, id)

	return err
}
