package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/outbox/domain"
)

// ReplayUseCase implements operator inspection and replay of dead-lettered
// items.
type ReplayUseCase struct {
	itemRepo       OutboxItemRepository
	deadLetterRepo DeadLetterRepository
	txManager      database.TxManager
	clock          clockwork.Clock
	logger         *slog.Logger
}

// NewReplayUseCase creates a new ReplayUseCase.
func NewReplayUseCase(
	itemRepo OutboxItemRepository,
	deadLetterRepo DeadLetterRepository,
	txManager database.TxManager,
	clock clockwork.Clock,
	logger *slog.Logger,
) *ReplayUseCase {
	return &ReplayUseCase{
		itemRepo:       itemRepo,
		deadLetterRepo: deadLetterRepo,
		txManager:      txManager,
		clock:          clock,
		logger:         logger,
	}
}

// ListDeadLetters returns dead-lettered items ordered by failure time,
// newest first.
func (uc *ReplayUseCase) ListDeadLetters(ctx context.Context, offset, limit int) ([]*domain.DeadLetterItem, error) {
	items, err := uc.deadLetterRepo.List(ctx, offset, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list dead letters")
	}
	return items, nil
}

// Replay resets the outbox item behind a dead letter back to pending with a
// fresh attempt budget and stamps the dead letter as replayed. Replaying an
// already replayed dead letter returns ErrConflict.
func (uc *ReplayUseCase) Replay(ctx context.Context, deadLetterID uuid.UUID, replayedBy string) error {
	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		deadLetter, err := uc.deadLetterRepo.GetByID(ctx, deadLetterID)
		if err != nil {
			return err
		}

		if deadLetter.ReplayedAt != nil {
			return apperrors.Wrapf(apperrors.ErrConflict, "dead letter %s already replayed", deadLetterID)
		}

		item, err := uc.itemRepo.GetByID(ctx, deadLetter.OutboxItemID)
		if err != nil {
			return err
		}

		item.Status = domain.OutboxItemStatusPending
		item.Attempts = 0
		item.NextAttemptAt = uc.clock.Now()
		item.LastError = nil
		if err := uc.itemRepo.Update(ctx, item); err != nil {
			return err
		}

		return uc.deadLetterRepo.MarkReplayed(ctx, deadLetterID, uc.clock.Now(), replayedBy)
	})
	if err != nil {
		return err
	}

	if uc.logger != nil {
		uc.logger.Info("dead letter replayed",
			slog.String("dead_letter_id", deadLetterID.String()),
			slog.String("replayed_by", replayedBy),
		)
	}
	return nil
}
