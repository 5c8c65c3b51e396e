package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/playbook/domain"
)

// PostgreSQLStudentStateRepository reads the case, reply and attendance
// snapshots the stop evaluator consumes, plus the student-guardian links used
// for seeding. All tables belong to the wider platform; this repository only
// reads them.
type PostgreSQLStudentStateRepository struct {
	db *sql.DB
}

// NewPostgreSQLStudentStateRepository creates a new PostgreSQLStudentStateRepository.
func NewPostgreSQLStudentStateRepository(db *sql.DB) *PostgreSQLStudentStateRepository {
	return &PostgreSQLStudentStateRepository{db: db}
}

// GetStudentState returns the evaluator snapshot for one (student, guardian)
// pair. Each fact is nil when the underlying table has no row.
func (r *PostgreSQLStudentStateRepository) GetStudentState(
	ctx context.Context,
	tenantID, studentID, guardianID uuid.UUID,
) (*domain.StudentState, error) {
	querier := database.GetTx(ctx, r.db)
	state := &domain.StudentState{}

	caseQuery := `
		SELECT status FROM cases
		WHERE tenant_id = $1 AND student_id = $2
		ORDER BY created_at DESC
		LIMIT 1`
	var caseStatus string
	err := querier.QueryRowContext(ctx, caseQuery, tenantID, studentID).Scan(&caseStatus)
	switch {
	case err == nil:
		state.CaseStatus = &caseStatus
	case apperrors.Is(err, sql.ErrNoRows):
		// no case linked to the student
	default:
		return nil, apperrors.Wrap(err, "failed to get case status")
	}

	replyQuery := `
		SELECT MAX(occurred_at) FROM guardian_reply_events
		WHERE tenant_id = $1 AND guardian_id = $2`
	var lastReply sql.NullTime
	if err := querier.QueryRowContext(ctx, replyQuery, tenantID, guardianID).Scan(&lastReply); err != nil {
		return nil, apperrors.Wrap(err, "failed to get last guardian reply")
	}
	if lastReply.Valid {
		state.LastGuardianReplyAt = &lastReply.Time
	}

	attendanceQuery := `
		SELECT rate FROM attendance_summaries
		WHERE tenant_id = $1 AND student_id = $2
		ORDER BY period_start DESC
		LIMIT 1`
	var rate float64
	err = querier.QueryRowContext(ctx, attendanceQuery, tenantID, studentID).Scan(&rate)
	switch {
	case err == nil:
		state.AttendanceRate = &rate
	case apperrors.Is(err, sql.ErrNoRows):
		// no attendance summary yet
	default:
		return nil, apperrors.Wrap(err, "failed to get attendance rate")
	}

	return state, nil
}

// GetGuardianIDs returns the guardians linked to a student.
func (r *PostgreSQLStudentStateRepository) GetGuardianIDs(
	ctx context.Context,
	tenantID, studentID uuid.UUID,
) ([]uuid.UUID, error) {
	query := `
		SELECT guardian_id FROM student_guardians
		WHERE tenant_id = $1 AND student_id = $2
		ORDER BY guardian_id ASC`

	querier := database.GetTx(ctx, r.db)
	rows, err := querier.QueryContext(ctx, query, tenantID, studentID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get guardians")
	}
	defer func() { _ = rows.Close() }()

	var guardianIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan guardian id")
		}
		guardianIDs = append(guardianIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate guardians")
	}

	return guardianIDs, nil
}

// GetGuardianChannels returns the channels a guardian is reachable on.
func (r *PostgreSQLStudentStateRepository) GetGuardianChannels(
	ctx context.Context,
	tenantID, guardianID uuid.UUID,
) ([]string, error) {
	query := `
		SELECT channel FROM guardian_channels
		WHERE tenant_id = $1 AND guardian_id = $2
		ORDER BY channel ASC`

	querier := database.GetTx(ctx, r.db)
	rows, err := querier.QueryContext(ctx, query, tenantID, guardianID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get guardian channels")
	}
	defer func() { _ = rows.Close() }()

	var channels []string
	for rows.Next() {
		var channel string
		if err := rows.Scan(&channel); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan guardian channel")
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate guardian channels")
	}

	return channels, nil
}
