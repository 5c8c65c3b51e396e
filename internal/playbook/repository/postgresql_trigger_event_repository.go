package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/playbook/domain"
)

// PostgreSQLTriggerEventRepository reads the append-only trigger feed.
type PostgreSQLTriggerEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLTriggerEventRepository creates a new PostgreSQLTriggerEventRepository.
func NewPostgreSQLTriggerEventRepository(db *sql.DB) *PostgreSQLTriggerEventRepository {
	return &PostgreSQLTriggerEventRepository{db: db}
}

// GetRecentByStage returns a tenant's trigger events for a stage inside the
// seeding window, oldest first. Deduplication against already seeded runs is
// handled by the run table's unique constraint, not here.
func (r *PostgreSQLTriggerEventRepository) GetRecentByStage(
	ctx context.Context,
	tenantID uuid.UUID,
	stage string,
	since time.Time,
) ([]*domain.TriggerEvent, error) {
	query := `
		SELECT id, tenant_id, student_id, stage, occurred_at
		FROM trigger_events
		WHERE tenant_id = $1 AND stage = $2 AND occurred_at >= $3
		ORDER BY occurred_at ASC`

	querier := database.GetTx(ctx, r.db)
	rows, err := querier.QueryContext(ctx, query, tenantID, stage, since)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get trigger events")
	}
	defer func() { _ = rows.Close() }()

	var events []*domain.TriggerEvent
	for rows.Next() {
		var event domain.TriggerEvent
		err := rows.Scan(&event.ID, &event.TenantID, &event.StudentID, &event.Stage, &event.OccurredAt)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan trigger event")
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate trigger events")
	}

	return events, nil
}

// Create appends one trigger event. Producers elsewhere in the platform write
// these rows; the orchestrator itself only reads them. Exposed for seeding
// tools and tests.
func (r *PostgreSQLTriggerEventRepository) Create(ctx context.Context, event *domain.TriggerEvent) error {
	query := `
		INSERT INTO trigger_events (id, tenant_id, student_id, stage, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`

	querier := database.GetTx(ctx, r.db)
	_, err := querier.ExecContext(ctx, query,
		event.ID,
		event.TenantID,
		event.StudentID,
		event.Stage,
		event.OccurredAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create trigger event")
	}

	return nil
}
