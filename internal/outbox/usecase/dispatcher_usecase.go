package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/metrics"
	"github.com/allisson/schoolops/internal/outbox/domain"
)

// Handler executes the side effect for one outbox item type.
type Handler interface {
	Handle(ctx context.Context, item *domain.OutboxItem) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, item *domain.OutboxItem) error

// Handle calls f(ctx, item).
func (f HandlerFunc) Handle(ctx context.Context, item *domain.OutboxItem) error {
	return f(ctx, item)
}

// DispatcherConfig holds the dispatch loop settings.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RatePerSec   float64
	RateBurst    int
}

// DispatcherUseCase drains due outbox items and executes their handlers with
// at-least-once semantics. The retry schedule is persisted before the handler
// runs, so a crash mid-handler leaves the item due again after its backoff.
type DispatcherUseCase struct {
	itemRepo       OutboxItemRepository
	deadLetterRepo DeadLetterRepository
	txManager      database.TxManager
	handlers       map[string]Handler
	limiter        *rate.Limiter
	config         DispatcherConfig
	clock          clockwork.Clock
	logger         *slog.Logger
	metrics        metrics.BusinessMetrics
}

// NewDispatcherUseCase creates a new DispatcherUseCase.
func NewDispatcherUseCase(
	itemRepo OutboxItemRepository,
	deadLetterRepo DeadLetterRepository,
	txManager database.TxManager,
	config DispatcherConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
	businessMetrics metrics.BusinessMetrics,
) *DispatcherUseCase {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = domain.DefaultMaxAttempts
	}
	var limiter *rate.Limiter
	if config.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSec), config.RateBurst)
	}
	return &DispatcherUseCase{
		itemRepo:       itemRepo,
		deadLetterRepo: deadLetterRepo,
		txManager:      txManager,
		handlers:       make(map[string]Handler),
		limiter:        limiter,
		config:         config,
		clock:          clock,
		logger:         logger,
		metrics:        businessMetrics,
	}
}

// RegisterHandler binds a handler to an item type. Registration happens at
// startup, before the loop starts, so no locking is needed.
func (uc *DispatcherUseCase) RegisterHandler(itemType string, handler Handler) {
	uc.handlers[itemType] = handler
}

// Start runs the dispatch loop until the context is canceled.
func (uc *DispatcherUseCase) Start(ctx context.Context) error {
	if uc.logger != nil {
		uc.logger.Info("outbox dispatcher started",
			slog.Duration("poll_interval", uc.config.PollInterval),
			slog.Int("batch_size", uc.config.BatchSize),
		)
	}

	ticker := uc.clock.NewTicker(uc.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if uc.logger != nil {
				uc.logger.Info("outbox dispatcher stopped")
			}
			return ctx.Err()
		case <-ticker.Chan():
			if err := uc.ProcessItems(ctx); err != nil {
				if uc.logger != nil {
					uc.logger.Error("outbox dispatch tick failed", slog.Any("error", err))
				}
			}
		}
	}
}

// ProcessItems executes one dispatch cycle: claim a batch of due items, then
// run and finalize each one in order.
func (uc *DispatcherUseCase) ProcessItems(ctx context.Context) error {
	items, err := uc.claimBatch(ctx)
	if err != nil {
		return apperrors.Wrap(err, "failed to claim outbox batch")
	}

	for _, item := range items {
		if uc.limiter != nil {
			if err := uc.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		uc.dispatchItem(ctx, item)
	}

	return nil
}

// claimBatch selects due items and marks them processing in a single
// transaction. Attempts and the next attempt time are persisted before any
// handler runs, which keeps retries bounded even if the process dies while a
// handler is executing.
func (uc *DispatcherUseCase) claimBatch(ctx context.Context) ([]*domain.OutboxItem, error) {
	var items []*domain.OutboxItem

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		dueItems, err := uc.itemRepo.GetDueItems(ctx, uc.config.BatchSize)
		if err != nil {
			return err
		}

		for _, item := range dueItems {
			item.Status = domain.OutboxItemStatusProcessing
			item.Attempts++
			item.NextAttemptAt = uc.clock.Now().Add(domain.BackoffDelay(item.Attempts))
			if err := uc.itemRepo.Update(ctx, item); err != nil {
				return err
			}
		}

		items = dueItems
		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// dispatchItem runs the handler for one claimed item and finalizes its state.
// Handler errors never abort the batch.
func (uc *DispatcherUseCase) dispatchItem(ctx context.Context, item *domain.OutboxItem) {
	start := uc.clock.Now()

	handler, ok := uc.handlers[item.ItemType]
	var handlerErr error
	if !ok {
		handlerErr = apperrors.Wrapf(apperrors.ErrUnknownItemType, "item_type=%s", item.ItemType)
	} else {
		handlerErr = handler.Handle(ctx, item)
	}

	status := "success"
	if handlerErr != nil {
		status = "error"
	}
	if uc.metrics != nil {
		uc.metrics.RecordOperation(ctx, "outbox", "dispatch", status)
		uc.metrics.RecordDuration(ctx, "outbox", "dispatch", uc.clock.Since(start), status)
	}

	if err := uc.finalizeItem(ctx, item, handlerErr); err != nil {
		if uc.logger != nil {
			uc.logger.Error("failed to finalize outbox item",
				slog.String("item_id", item.ID.String()),
				slog.Any("error", err),
			)
		}
	}
}

// finalizeItem persists the post-handler state of one item. A success
// completes the item; a failure at the attempt limit dead-letters it in the
// same transaction, otherwise the item goes back to pending and will be
// retried when its backoff elapses.
func (uc *DispatcherUseCase) finalizeItem(ctx context.Context, item *domain.OutboxItem, handlerErr error) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if handlerErr == nil {
			item.Status = domain.OutboxItemStatusCompleted
			item.LastError = nil
			if err := uc.itemRepo.Update(ctx, item); err != nil {
				return err
			}
			if uc.logger != nil {
				uc.logger.Debug("outbox item completed",
					slog.String("item_id", item.ID.String()),
					slog.String("item_type", item.ItemType),
				)
			}
			return nil
		}

		errMsg := handlerErr.Error()
		item.LastError = &errMsg

		if item.Attempts >= uc.config.MaxAttempts {
			item.Status = domain.OutboxItemStatusFailed
			if err := uc.itemRepo.Update(ctx, item); err != nil {
				return err
			}

			deadLetter := &domain.DeadLetterItem{
				ID:           uuid.Must(uuid.NewV7()),
				TenantID:     item.TenantID,
				OutboxItemID: item.ID,
				ItemType:     item.ItemType,
				Payload:      item.Payload,
				Reason:       fmt.Sprintf("exhausted %d attempts: %s", item.Attempts, errMsg),
				FailedAt:     uc.clock.Now(),
			}
			if err := uc.deadLetterRepo.Create(ctx, deadLetter); err != nil {
				return err
			}

			if uc.logger != nil {
				uc.logger.Warn("outbox item dead-lettered",
					slog.String("item_id", item.ID.String()),
					slog.String("item_type", item.ItemType),
					slog.Int("attempts", item.Attempts),
					slog.String("error", errMsg),
				)
			}
			if uc.metrics != nil {
				uc.metrics.RecordOperation(ctx, "outbox", "dead_letter", "error")
			}
			return nil
		}

		item.Status = domain.OutboxItemStatusPending
		if err := uc.itemRepo.Update(ctx, item); err != nil {
			return err
		}

		if uc.logger != nil {
			uc.logger.Warn("outbox item failed, will retry",
				slog.String("item_id", item.ID.String()),
				slog.String("item_type", item.ItemType),
				slog.Int("attempts", item.Attempts),
				slog.Time("next_attempt_at", item.NextAttemptAt),
				slog.String("error", errMsg),
			)
		}
		return nil
	})
}
