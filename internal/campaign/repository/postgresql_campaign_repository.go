// Package repository implements PostgreSQL persistence for campaigns.
package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/schoolops/internal/campaign/domain"
	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
)

// PostgreSQLCampaignRepository implements campaign persistence using
// PostgreSQL.
type PostgreSQLCampaignRepository struct {
	db *sql.DB
}

// NewPostgreSQLCampaignRepository creates a new PostgreSQLCampaignRepository.
func NewPostgreSQLCampaignRepository(db *sql.DB) *PostgreSQLCampaignRepository {
	return &PostgreSQLCampaignRepository{db: db}
}

// GetDueScheduled returns campaigns still SCHEDULED whose send time has
// passed, oldest first.
func (r *PostgreSQLCampaignRepository) GetDueScheduled(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	query := `
		SELECT id, tenant_id, name, audience_stage, channel, template_ref, scheduled_at,
		       status, last_error, created_at, updated_at
		FROM campaigns
		WHERE status = $1 AND scheduled_at <= NOW()
		ORDER BY scheduled_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	querier := database.GetTx(ctx, r.db)
	rows, err := querier.QueryContext(ctx, query, domain.CampaignStatusScheduled, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get due campaigns")
	}
	defer func() { _ = rows.Close() }()

	var campaigns []*domain.Campaign
	for rows.Next() {
		var campaign domain.Campaign
		err := rows.Scan(
			&campaign.ID,
			&campaign.TenantID,
			&campaign.Name,
			&campaign.AudienceStage,
			&campaign.Channel,
			&campaign.TemplateRef,
			&campaign.ScheduledAt,
			&campaign.Status,
			&campaign.LastError,
			&campaign.CreatedAt,
			&campaign.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan campaign")
		}
		campaigns = append(campaigns, &campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate campaigns")
	}

	return campaigns, nil
}

// Update persists the mutable campaign fields.
func (r *PostgreSQLCampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	query := `
		UPDATE campaigns
		SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`

	querier := database.GetTx(ctx, r.db)
	result, err := querier.ExecContext(ctx, query, campaign.ID, campaign.Status, campaign.LastError)
	if err != nil {
		return apperrors.Wrap(err, "failed to update campaign")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "campaign %s", campaign.ID)
	}

	return nil
}

// GetAudienceGuardians returns the distinct guardians linked to students in
// the campaign's audience stage.
func (r *PostgreSQLCampaignRepository) GetAudienceGuardians(
	ctx context.Context,
	tenantID uuid.UUID,
	stage string,
) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT sg.guardian_id
		FROM student_guardians sg
		JOIN students s ON s.id = sg.student_id AND s.tenant_id = sg.tenant_id
		WHERE sg.tenant_id = $1 AND s.stage = $2
		ORDER BY sg.guardian_id ASC`

	querier := database.GetTx(ctx, r.db)
	rows, err := querier.QueryContext(ctx, query, tenantID, stage)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get audience guardians")
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
		return nil, apperrors.Wrap(err, "failed to iterate audience guardians")
	}

	return guardianIDs, nil
}
