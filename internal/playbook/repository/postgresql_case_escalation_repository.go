package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/playbook/domain"
)

// PostgreSQLCaseEscalationRepository implements case escalation persistence
// using PostgreSQL.
type PostgreSQLCaseEscalationRepository struct {
	db *sql.DB
}

// NewPostgreSQLCaseEscalationRepository creates a new PostgreSQLCaseEscalationRepository.
func NewPostgreSQLCaseEscalationRepository(db *sql.DB) *PostgreSQLCaseEscalationRepository {
	return &PostgreSQLCaseEscalationRepository{db: db}
}

// Create records one escalation. The unique constraint on run_id makes the
// write insert-if-absent, so redelivered case.escalate items are harmless.
func (r *PostgreSQLCaseEscalationRepository) Create(ctx context.Context, escalation *domain.CaseEscalation) (bool, error) {
	query := `
		INSERT INTO case_escalations (id, tenant_id, run_id, student_id, escalated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO NOTHING`

	querier := database.GetTx(ctx, r.db)
	result, err := querier.ExecContext(ctx, query,
		escalation.ID,
		escalation.TenantID,
		escalation.RunID,
		escalation.StudentID,
		escalation.EscalatedAt,
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to create case escalation")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to get rows affected")
	}

	return rowsAffected == 1, nil
}
