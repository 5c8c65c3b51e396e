// Package usecase implements the weekly tier review job and its outbox
// handler.
package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/metrics"
	outboxDomain "github.com/allisson/schoolops/internal/outbox/domain"
	outboxUsecase "github.com/allisson/schoolops/internal/outbox/usecase"
	"github.com/allisson/schoolops/internal/tierreview/domain"
)

// JobName is the lease name the tier review job runs under.
const JobName = "tier-review"

// TierRepository defines tier repository operations.
type TierRepository interface {
	GetLatestRates(ctx context.Context) ([]*domain.StudentRate, error)
	GetCurrentTier(ctx context.Context, tenantID, studentID uuid.UUID) (*domain.TierAssignment, error)
	UpsertTier(ctx context.Context, assignment *domain.TierAssignment) error
	CreateReviewTask(ctx context.Context, task *domain.ReviewTask) (bool, error)
}

// TierReviewUseCase bands students into attendance tiers and enqueues one
// review item per tier change. It implements the scheduler Job interface.
type TierReviewUseCase struct {
	tierRepo TierRepository
	enqueuer outboxUsecase.Enqueuer
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  metrics.BusinessMetrics
}

// NewTierReviewUseCase creates a new TierReviewUseCase.
func NewTierReviewUseCase(
	tierRepo TierRepository,
	enqueuer outboxUsecase.Enqueuer,
	clock clockwork.Clock,
	logger *slog.Logger,
	businessMetrics metrics.BusinessMetrics,
) *TierReviewUseCase {
	return &TierReviewUseCase{
		tierRepo: tierRepo,
		enqueuer: enqueuer,
		clock:    clock,
		logger:   logger,
		metrics:  businessMetrics,
	}
}

// Name returns the job name used for lease acquisition.
func (uc *TierReviewUseCase) Name() string {
	return JobName
}

// Run executes one review pass: band every student's latest rate and, where
// the band changed, persist the new tier and enqueue a review item. Per-row
// failures are isolated.
func (uc *TierReviewUseCase) Run(ctx context.Context) error {
	rates, err := uc.tierRepo.GetLatestRates(ctx)
	if err != nil {
		return apperrors.Wrap(err, "failed to load attendance rates")
	}

	for _, rate := range rates {
		if err := uc.reviewStudent(ctx, rate); err != nil {
			if uc.logger != nil {
				uc.logger.Error("tier review failed for student",
					slog.String("student_id", rate.StudentID.String()),
					slog.Any("error", err),
				)
			}
		}
	}

	return nil
}

func (uc *TierReviewUseCase) reviewStudent(ctx context.Context, rate *domain.StudentRate) error {
	tier := domain.TierForRate(rate.Rate)

	current, err := uc.tierRepo.GetCurrentTier(ctx, rate.TenantID, rate.StudentID)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	if current != nil && current.Tier == tier {
		return nil
	}

	now := uc.clock.Now()
	weekStart := domain.WeekStart(now)

	payload, err := domain.ReviewRequest{
		TenantID:  rate.TenantID,
		StudentID: rate.StudentID,
		Tier:      tier,
		WeekStart: weekStart,
	}.Encode()
	if err != nil {
		return err
	}

	_, err = uc.enqueuer.Enqueue(ctx, outboxUsecase.EnqueueInput{
		TenantID:       rate.TenantID,
		ScopeID:        &rate.StudentID,
		ItemType:       domain.ItemTypeTierReview,
		Payload:        payload,
		IdempotencyKey: domain.ReviewIdempotencyKey(rate.StudentID, tier, weekStart),
	})
	if err != nil {
		return err
	}

	err = uc.tierRepo.UpsertTier(ctx, &domain.TierAssignment{
		ID:         uuid.Must(uuid.NewV7()),
		TenantID:   rate.TenantID,
		StudentID:  rate.StudentID,
		Tier:       tier,
		WeekStart:  weekStart,
		AssignedAt: now,
	})
	if err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.RecordOperation(ctx, "scheduler", "tier_review", "success")
	}
	if uc.logger != nil {
		uc.logger.Info("student tier changed",
			slog.String("student_id", rate.StudentID.String()),
			slog.String("tier", string(tier)),
			slog.Float64("rate", rate.Rate),
		)
	}

	return nil
}

// TierReviewHandler is the outbox handler for tier.review items: it records
// the durable review task for staff.
type TierReviewHandler struct {
	tierRepo TierRepository
	clock    clockwork.Clock
}

// NewTierReviewHandler creates a new TierReviewHandler.
func NewTierReviewHandler(tierRepo TierRepository, clock clockwork.Clock) *TierReviewHandler {
	return &TierReviewHandler{tierRepo: tierRepo, clock: clock}
}

// Handle processes one tier.review outbox item.
func (h *TierReviewHandler) Handle(ctx context.Context, item *outboxDomain.OutboxItem) error {
	request, err := domain.DecodeReviewRequest(item.Payload)
	if err != nil {
		return err
	}

	_, err = h.tierRepo.CreateReviewTask(ctx, &domain.ReviewTask{
		ID:        uuid.Must(uuid.NewV7()),
		TenantID:  request.TenantID,
		StudentID: request.StudentID,
		Tier:      request.Tier,
		WeekStart: request.WeekStart,
		CreatedAt: h.clock.Now(),
	})
	return err
}
