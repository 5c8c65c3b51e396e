package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/playbook/domain"
)

// PostgreSQLTelemetryRepository implements append-only telemetry persistence
// using PostgreSQL.
type PostgreSQLTelemetryRepository struct {
	db *sql.DB
}

// NewPostgreSQLTelemetryRepository creates a new PostgreSQLTelemetryRepository.
func NewPostgreSQLTelemetryRepository(db *sql.DB) *PostgreSQLTelemetryRepository {
	return &PostgreSQLTelemetryRepository{db: db}
}

// Create appends one telemetry fact.
func (r *PostgreSQLTelemetryRepository) Create(ctx context.Context, event *domain.TelemetryEvent) error {
	query := `
		INSERT INTO playbook_telemetry_events (id, tenant_id, run_id, event_type, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`

	querier := database.GetTx(ctx, r.db)
	_, err := querier.ExecContext(ctx, query,
		event.ID,
		event.TenantID,
		event.RunID,
		event.EventType,
		event.OccurredAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create telemetry event")
	}

	return nil
}
