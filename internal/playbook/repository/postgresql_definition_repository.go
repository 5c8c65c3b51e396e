// Package repository implements PostgreSQL persistence for the playbook
// catalog, runs, execution logs, telemetry and the read models consumed by
// the orchestration loop.
package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/playbook/domain"
)

// PostgreSQLDefinitionRepository implements catalog reads using PostgreSQL.
// Definitions are read-only from the orchestrator's point of view.
type PostgreSQLDefinitionRepository struct {
	db *sql.DB
}

// NewPostgreSQLDefinitionRepository creates a new PostgreSQLDefinitionRepository.
func NewPostgreSQLDefinitionRepository(db *sql.DB) *PostgreSQLDefinitionRepository {
	return &PostgreSQLDefinitionRepository{db: db}
}

// GetActiveDefinitions returns all active definitions with their steps loaded
// in position order.
func (r *PostgreSQLDefinitionRepository) GetActiveDefinitions(ctx context.Context) ([]*domain.Definition, error) {
	query := `
		SELECT id, tenant_id, name, trigger_stage, escalation_after_days, active, created_at, updated_at
		FROM playbook_definitions
		WHERE active = TRUE
		ORDER BY created_at ASC`

	querier := database.GetTx(ctx, r.db)
	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get active definitions")
	}
	defer func() { _ = rows.Close() }()

	var definitions []*domain.Definition
	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		definitions = append(definitions, definition)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate definitions")
	}

	if err := r.loadSteps(ctx, definitions); err != nil {
		return nil, err
	}

	return definitions, nil
}

// GetByID returns one definition with its steps.
func (r *PostgreSQLDefinitionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Definition, error) {
	query := `
		SELECT id, tenant_id, name, trigger_stage, escalation_after_days, active, created_at, updated_at
		FROM playbook_definitions
		WHERE id = $1`

	querier := database.GetTx(ctx, r.db)
	row := querier.QueryRowContext(ctx, query, id)

	definition, err := scanDefinition(row)
	if err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "definition %s", id)
		}
		return nil, err
	}

	if err := r.loadSteps(ctx, []*domain.Definition{definition}); err != nil {
		return nil, err
	}

	return definition, nil
}

// loadSteps attaches ordered steps to the given definitions in one query.
func (r *PostgreSQLDefinitionRepository) loadSteps(ctx context.Context, definitions []*domain.Definition) error {
	if len(definitions) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Definition, len(definitions))
	ids := make([]string, 0, len(definitions))
	for _, definition := range definitions {
		byID[definition.ID] = definition
		ids = append(ids, definition.ID.String())
	}

	query := `
		SELECT id, definition_id, position, offset_days, channel, template_ref, fallback_channel, skip_if_replied
		FROM playbook_steps
		WHERE definition_id = ANY($1)
		ORDER BY definition_id, position ASC`

	querier := database.GetTx(ctx, r.db)
	rows, err := querier.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return apperrors.Wrap(err, "failed to get playbook steps")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var step domain.Step
		err := rows.Scan(
			&step.ID,
			&step.DefinitionID,
			&step.Position,
			&step.OffsetDays,
			&step.Channel,
			&step.TemplateRef,
			&step.FallbackChannel,
			&step.SkipIfReplied,
		)
		if err != nil {
			return apperrors.Wrap(err, "failed to scan playbook step")
		}
		if definition, ok := byID[step.DefinitionID]; ok {
			definition.Steps = append(definition.Steps, step)
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.Wrap(err, "failed to iterate playbook steps")
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*domain.Definition, error) {
	var definition domain.Definition
	err := row.Scan(
		&definition.ID,
		&definition.TenantID,
		&definition.Name,
		&definition.TriggerStage,
		&definition.EscalationAfterDays,
		&definition.Active,
		&definition.CreatedAt,
		&definition.UpdatedAt,
	)
	if err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, "failed to scan definition")
	}
	return &definition, nil
}
