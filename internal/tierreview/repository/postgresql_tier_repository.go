// Package repository implements PostgreSQL persistence for tier assignments
// and review tasks.
package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/tierreview/domain"
)

// PostgreSQLTierRepository implements tier persistence using PostgreSQL.
type PostgreSQLTierRepository struct {
	db *sql.DB
}

// NewPostgreSQLTierRepository creates a new PostgreSQLTierRepository.
func NewPostgreSQLTierRepository(db *sql.DB) *PostgreSQLTierRepository {
	return &PostgreSQLTierRepository{db: db}
}

// GetLatestRates returns each student's most recent attendance rate.
func (r *PostgreSQLTierRepository) GetLatestRates(ctx context.Context) ([]*domain.StudentRate, error) {
	query := `
		SELECT DISTINCT ON (tenant_id, student_id) tenant_id, student_id, rate
		FROM attendance_summaries
		ORDER BY tenant_id, student_id, period_start DESC`

	querier := database.GetTx(ctx, r.db)
	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get latest attendance rates")
	}
	defer func() { _ = rows.Close() }()

	var rates []*domain.StudentRate
	for rows.Next() {
		var rate domain.StudentRate
		if err := rows.Scan(&rate.TenantID, &rate.StudentID, &rate.Rate); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan attendance rate")
		}
		rates = append(rates, &rate)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate attendance rates")
	}

	return rates, nil
}

// GetCurrentTier returns a student's current tier assignment.
func (r *PostgreSQLTierRepository) GetCurrentTier(ctx context.Context, tenantID, studentID uuid.UUID) (*domain.TierAssignment, error) {
	query := `
		SELECT id, tenant_id, student_id, tier, week_start, assigned_at
		FROM tier_assignments
		WHERE tenant_id = $1 AND student_id = $2`

	querier := database.GetTx(ctx, r.db)
	row := querier.QueryRowContext(ctx, query, tenantID, studentID)

	var assignment domain.TierAssignment
	err := row.Scan(
		&assignment.ID,
		&assignment.TenantID,
		&assignment.StudentID,
		&assignment.Tier,
		&assignment.WeekStart,
		&assignment.AssignedAt,
	)
	if err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "tier assignment for student %s", studentID)
		}
		return nil, apperrors.Wrap(err, "failed to get tier assignment")
	}

	return &assignment, nil
}

// UpsertTier replaces a student's tier assignment.
func (r *PostgreSQLTierRepository) UpsertTier(ctx context.Context, assignment *domain.TierAssignment) error {
	query := `
		INSERT INTO tier_assignments (id, tenant_id, student_id, tier, week_start, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, student_id) DO UPDATE
		SET tier = EXCLUDED.tier, week_start = EXCLUDED.week_start, assigned_at = EXCLUDED.assigned_at`

	querier := database.GetTx(ctx, r.db)
	_, err := querier.ExecContext(ctx, query,
		assignment.ID,
		assignment.TenantID,
		assignment.StudentID,
		assignment.Tier,
		assignment.WeekStart,
		assignment.AssignedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert tier assignment")
	}

	return nil
}

// CreateReviewTask records one review task. The unique constraint on
// (tenant_id, student_id, tier, week_start) makes the write insert-if-absent,
// so redelivered tier.review items are harmless.
func (r *PostgreSQLTierRepository) CreateReviewTask(ctx context.Context, task *domain.ReviewTask) (bool, error) {
	query := `
		INSERT INTO tier_review_tasks (id, tenant_id, student_id, tier, week_start, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, student_id, tier, week_start) DO NOTHING`

	querier := database.GetTx(ctx, r.db)
	result, err := querier.ExecContext(ctx, query,
		task.ID,
		task.TenantID,
		task.StudentID,
		task.Tier,
		task.WeekStart,
		task.CreatedAt,
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to create review task")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to get rows affected")
	}

	return rowsAffected == 1, nil
}
