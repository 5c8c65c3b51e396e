package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/playbook/domain"
)

// PostgreSQLExecutionLogRepository implements execution log persistence using
// PostgreSQL.
type PostgreSQLExecutionLogRepository struct {
	db *sql.DB
}

// NewPostgreSQLExecutionLogRepository creates a new PostgreSQLExecutionLogRepository.
func NewPostgreSQLExecutionLogRepository(db *sql.DB) *PostgreSQLExecutionLogRepository {
	return &PostgreSQLExecutionLogRepository{db: db}
}

// Create appends one step execution row. The unique constraint on
// (run_id, step_id) makes the write insert-if-absent; returns whether a row
// was inserted.
func (r *PostgreSQLExecutionLogRepository) Create(ctx context.Context, log *domain.ExecutionLog) (bool, error) {
	query := `
		INSERT INTO playbook_execution_logs (
			id, tenant_id, run_id, step_id, channel, outbox_item_id, status,
			idempotency_key, scheduled_for, executed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, step_id) DO NOTHING`

	querier := database.GetTx(ctx, r.db)
	result, err := querier.ExecContext(ctx, query,
		log.ID,
		log.TenantID,
		log.RunID,
		log.StepID,
		log.Channel,
		log.OutboxItemID,
		log.Status,
		log.IdempotencyKey,
		log.ScheduledFor,
		log.ExecutedAt,
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to create execution log")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to get rows affected")
	}

	return rowsAffected == 1, nil
}

// GetByRunID returns the execution rows of a run ordered by execution time.
func (r *PostgreSQLExecutionLogRepository) GetByRunID(ctx context.Context, runID uuid.UUID) ([]*domain.ExecutionLog, error) {
	query := `
		SELECT id, tenant_id, run_id, step_id, channel, outbox_item_id, status,
		       idempotency_key, scheduled_for, executed_at
		FROM playbook_execution_logs
		WHERE run_id = $1
		ORDER BY executed_at ASC`

	querier := database.GetTx(ctx, r.db)
	rows, err := querier.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get execution logs")
	}
	defer func() { _ = rows.Close() }()

	var logs []*domain.ExecutionLog
	for rows.Next() {
		var log domain.ExecutionLog
		err := rows.Scan(
			&log.ID,
			&log.TenantID,
			&log.RunID,
			&log.StepID,
			&log.Channel,
			&log.OutboxItemID,
			&log.Status,
			&log.IdempotencyKey,
			&log.ScheduledFor,
			&log.ExecutedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan execution log")
		}
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate execution logs")
	}

	return logs, nil
}
