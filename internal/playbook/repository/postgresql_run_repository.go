package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/playbook/domain"
)

// PostgreSQLRunRepository implements run persistence using PostgreSQL.
type PostgreSQLRunRepository struct {
	db *sql.DB
}

// NewPostgreSQLRunRepository creates a new PostgreSQLRunRepository.
func NewPostgreSQLRunRepository(db *sql.DB) *PostgreSQLRunRepository {
	return &PostgreSQLRunRepository{db: db}
}

// Create inserts a new run. The unique constraint on (tenant_id, playbook_id,
// student_id, guardian_id) makes seeding idempotent: re-observing the same
// trigger event creates nothing. Returns whether a row was inserted.
func (r *PostgreSQLRunRepository) Create(ctx context.Context, run *domain.Run) (bool, error) {
	query := `
		INSERT INTO playbook_runs (
			id, tenant_id, playbook_id, student_id, guardian_id, status,
			current_step, next_step_due_at, triggered_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (tenant_id, playbook_id, student_id, guardian_id) DO NOTHING`

	querier := database.GetTx(ctx, r.db)
	result, err := querier.ExecContext(ctx, query,
		run.ID,
		run.TenantID,
		run.PlaybookID,
		run.StudentID,
		run.GuardianID,
		run.Status,
		run.CurrentStep,
		run.NextStepDueAt,
		run.TriggeredAt,
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to create playbook run")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to get rows affected")
	}

	return rowsAffected == 1, nil
}

// GetDueRuns returns active runs whose next step is due, ordered by due time.
// FOR UPDATE SKIP LOCKED lets overlapping orchestrator instances work on
// disjoint runs.
func (r *PostgreSQLRunRepository) GetDueRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	query := `
		SELECT id, tenant_id, playbook_id, student_id, guardian_id, status, current_step,
		       next_step_due_at, stop_reason, triggered_at, stopped_at, escalated_at,
		       created_at, updated_at
		FROM playbook_runs
		WHERE status = $1 AND next_step_due_at IS NOT NULL AND next_step_due_at <= NOW()
		ORDER BY next_step_due_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	querier := database.GetTx(ctx, r.db)
	rows, err := querier.QueryContext(ctx, query, domain.RunStatusActive, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get due runs")
	}
	defer func() { _ = rows.Close() }()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate due runs")
	}

	return runs, nil
}

// Update persists the mutable run fields.
func (r *PostgreSQLRunRepository) Update(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE playbook_runs
		SET status = $2, current_step = $3, next_step_due_at = $4, stop_reason = $5,
		    stopped_at = $6, escalated_at = $7, updated_at = NOW()
		WHERE id = $1`

	querier := database.GetTx(ctx, r.db)
	result, err := querier.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.CurrentStep,
		run.NextStepDueAt,
		run.StopReason,
		run.StoppedAt,
		run.EscalatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update playbook run")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "playbook run %s", run.ID)
	}

	return nil
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	err := row.Scan(
		&run.ID,
		&run.TenantID,
		&run.PlaybookID,
		&run.StudentID,
		&run.GuardianID,
		&run.Status,
		&run.CurrentStep,
		&run.NextStepDueAt,
		&run.StopReason,
		&run.TriggeredAt,
		&run.StoppedAt,
		&run.EscalatedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to scan playbook run")
	}
	return &run, nil
}
