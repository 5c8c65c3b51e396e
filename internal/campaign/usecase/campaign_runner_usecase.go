// Package usecase implements the campaign runner job.
package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/allisson/schoolops/internal/campaign/domain"
	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	messagingDomain "github.com/allisson/schoolops/internal/messaging/domain"
	"github.com/allisson/schoolops/internal/metrics"
	outboxUsecase "github.com/allisson/schoolops/internal/outbox/usecase"
)

// JobName is the lease name the campaign runner runs under.
const JobName = "campaign-runner"

// CampaignRepository defines campaign repository operations.
type CampaignRepository interface {
	GetDueScheduled(ctx context.Context, limit int) ([]*domain.Campaign, error)
	Update(ctx context.Context, campaign *domain.Campaign) error
	GetAudienceGuardians(ctx context.Context, tenantID uuid.UUID, stage string) ([]uuid.UUID, error)
}

// CampaignRunnerConfig holds the campaign runner settings.
type CampaignRunnerConfig struct {
	BatchSize int
}

// CampaignRunnerUseCase fans due campaigns out to their audience through the
// outbox. It implements the scheduler Job interface.
type CampaignRunnerUseCase struct {
	campaignRepo CampaignRepository
	enqueuer     outboxUsecase.Enqueuer
	txManager    database.TxManager
	config       CampaignRunnerConfig
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      metrics.BusinessMetrics
}

// NewCampaignRunnerUseCase creates a new CampaignRunnerUseCase.
func NewCampaignRunnerUseCase(
	campaignRepo CampaignRepository,
	enqueuer outboxUsecase.Enqueuer,
	txManager database.TxManager,
	config CampaignRunnerConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
	businessMetrics metrics.BusinessMetrics,
) *CampaignRunnerUseCase {
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	return &CampaignRunnerUseCase{
		campaignRepo: campaignRepo,
		enqueuer:     enqueuer,
		txManager:    txManager,
		config:       config,
		clock:        clock,
		logger:       logger,
		metrics:      businessMetrics,
	}
}

// Name returns the job name used for lease acquisition.
func (uc *CampaignRunnerUseCase) Name() string {
	return JobName
}

// Run executes one campaign tick: every due SCHEDULED campaign is sent, with
// per-campaign failures isolated.
func (uc *CampaignRunnerUseCase) Run(ctx context.Context) error {
	campaigns, err := uc.campaignRepo.GetDueScheduled(ctx, uc.config.BatchSize)
	if err != nil {
		return apperrors.Wrap(err, "failed to load due campaigns")
	}

	for _, campaign := range campaigns {
		if err := uc.runCampaign(ctx, campaign); err != nil {
			uc.failCampaign(ctx, campaign, err)
		}
	}

	return nil
}

// runCampaign moves one campaign SCHEDULED -> SENDING -> COMPLETED. The
// per-guardian idempotency key makes a crash between SENDING and COMPLETED
// safe to replay by hand: re-enqueued guardians collapse onto existing items.
func (uc *CampaignRunnerUseCase) runCampaign(ctx context.Context, campaign *domain.Campaign) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		campaign.Status = domain.CampaignStatusSending
		if err := uc.campaignRepo.Update(ctx, campaign); err != nil {
			return err
		}

		guardianIDs, err := uc.campaignRepo.GetAudienceGuardians(ctx, campaign.TenantID, campaign.AudienceStage)
		if err != nil {
			return err
		}

		for _, guardianID := range guardianIDs {
			payload, err := messagingDomain.SendRequest{
				TenantID:    campaign.TenantID,
				GuardianID:  guardianID,
				Channel:     campaign.Channel,
				TemplateRef: campaign.TemplateRef,
				TemplateData: map[string]string{
					"campaign_id": campaign.ID.String(),
				},
			}.Encode()
			if err != nil {
				return err
			}

			_, err = uc.enqueuer.Enqueue(ctx, outboxUsecase.EnqueueInput{
				TenantID:       campaign.TenantID,
				ItemType:       messagingDomain.ItemTypeSendMessage,
				Payload:        payload,
				IdempotencyKey: domain.GuardianIdempotencyKey(campaign.ID, guardianID),
			})
			if err != nil {
				return err
			}
		}

		campaign.Status = domain.CampaignStatusCompleted
		campaign.LastError = nil
		if err := uc.campaignRepo.Update(ctx, campaign); err != nil {
			return err
		}

		if uc.metrics != nil {
			uc.metrics.RecordOperation(ctx, "scheduler", "campaign_run", "success")
		}
		if uc.logger != nil {
			uc.logger.Info("campaign sent",
				slog.String("campaign_id", campaign.ID.String()),
				slog.String("audience_stage", campaign.AudienceStage),
				slog.Int("guardians", len(guardianIDs)),
			)
		}
		return nil
	})
}

// failCampaign marks one campaign FAILED without aborting the batch.
func (uc *CampaignRunnerUseCase) failCampaign(ctx context.Context, campaign *domain.Campaign, cause error) {
	errMsg := cause.Error()
	campaign.Status = domain.CampaignStatusFailed
	campaign.LastError = &errMsg
	if err := uc.campaignRepo.Update(ctx, campaign); err != nil {
		if uc.logger != nil {
			uc.logger.Error("failed to mark campaign failed",
				slog.String("campaign_id", campaign.ID.String()),
				slog.Any("error", err),
			)
		}
		return
	}

	if uc.metrics != nil {
		uc.metrics.RecordOperation(ctx, "scheduler", "campaign_run", "error")
	}
	if uc.logger != nil {
		uc.logger.Error("campaign failed",
			slog.String("campaign_id", campaign.ID.String()),
			slog.String("error", errMsg),
		)
	}
}
