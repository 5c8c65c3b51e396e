// Package usecase implements the outbox business logic: idempotent enqueue,
// the dispatch loop with retry/backoff/dead-letter policy, and manual replay.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
	"github.com/jonboulle/clockwork"

	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/outbox/domain"
	customValidation "github.com/allisson/schoolops/internal/validation"
)

// OutboxItemRepository defines outbox item repository operations.
type OutboxItemRepository interface {
	Create(ctx context.Context, item *domain.OutboxItem) (bool, error)
	GetDueItems(ctx context.Context, limit int) ([]*domain.OutboxItem, error)
	Update(ctx context.Context, item *domain.OutboxItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxItem, error)
}

// DeadLetterRepository defines dead-letter repository operations.
type DeadLetterRepository interface {
	Create(ctx context.Context, item *domain.DeadLetterItem) error
	List(ctx context.Context, offset, limit int) ([]*domain.DeadLetterItem, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetterItem, error)
	MarkReplayed(ctx context.Context, id uuid.UUID, replayedAt time.Time, replayedBy string) error
}

// EnqueueInput carries one unit of asynchronous work to be recorded in the outbox.
// Tenant and scope are explicit: producers never rely on ambient tenant state.
type EnqueueInput struct {
	TenantID       uuid.UUID
	ScopeID        *uuid.UUID
	ItemType       string
	Payload        string
	IdempotencyKey string
}

// Validate checks the enqueue input shape.
func (i EnqueueInput) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.TenantID, customValidation.NonNilUUID{}),
		validation.Field(&i.ItemType, validation.Required, customValidation.ItemType),
		validation.Field(&i.Payload, validation.Required),
		validation.Field(&i.IdempotencyKey, validation.Required, customValidation.IdempotencyKey),
	)
}

// Enqueuer defines the enqueue contract consumed by all producers. A
// duplicate (tenant, idempotency key) pair returns (nil, nil): success, but
// no new item.
type Enqueuer interface {
	Enqueue(ctx context.Context, input EnqueueInput) (*domain.OutboxItem, error)
}

// EnqueueUseCase implements idempotent outbox enqueue.
type EnqueueUseCase struct {
	itemRepo OutboxItemRepository
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewEnqueueUseCase creates a new EnqueueUseCase.
func NewEnqueueUseCase(itemRepo OutboxItemRepository, clock clockwork.Clock, logger *slog.Logger) *EnqueueUseCase {
	return &EnqueueUseCase{
		itemRepo: itemRepo,
		clock:    clock,
		logger:   logger,
	}
}

// Enqueue records a new pending outbox item and returns it. A duplicate
// (tenant, idempotency key) pair is a silent no-op: the duplicate is logged
// and (nil, nil) is returned.
func (uc *EnqueueUseCase) Enqueue(ctx context.Context, input EnqueueInput) (*domain.OutboxItem, error) {
	if err := input.Validate(); err != nil {
		return nil, customValidation.WrapValidationError(err)
	}

	item := &domain.OutboxItem{
		ID:             uuid.Must(uuid.NewV7()),
		TenantID:       input.TenantID,
		ScopeID:        input.ScopeID,
		ItemType:       input.ItemType,
		Payload:        input.Payload,
		IdempotencyKey: input.IdempotencyKey,
		Status:         domain.OutboxItemStatusPending,
		Attempts:       0,
		NextAttemptAt:  uc.clock.Now(),
	}

	inserted, err := uc.itemRepo.Create(ctx, item)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to enqueue outbox item")
	}

	if !inserted {
		if uc.logger != nil {
			uc.logger.Debug("duplicate enqueue ignored",
				slog.String("tenant_id", input.TenantID.String()),
				slog.String("idempotency_key", input.IdempotencyKey),
			)
		}
		return nil, nil
	}

	if uc.logger != nil {
		uc.logger.Info("outbox item enqueued",
			slog.String("item_id", item.ID.String()),
			slog.String("item_type", item.ItemType),
			slog.String("tenant_id", input.TenantID.String()),
			slog.String("idempotency_key", input.IdempotencyKey),
		)
	}

	return item, nil
}
