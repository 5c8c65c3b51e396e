package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/outbox/domain"
)

func TestReplayUseCase_Replay_Success(t *testing.T) {
	itemRepo := &MockOutboxItemRepository{}
	deadLetterRepo := &MockDeadLetterRepository{}
	txManager := &MockTxManager{}
	clock := clockwork.NewFakeClock()
	useCase := NewReplayUseCase(itemRepo, deadLetterRepo, txManager, clock, nil)

	ctx := context.Background()
	lastError := "provider down"
	item := &domain.OutboxItem{
		ID:        uuid.Must(uuid.NewV7()),
		TenantID:  uuid.Must(uuid.NewV7()),
		ItemType:  "notification.send_message",
		Status:    domain.OutboxItemStatusFailed,
		Attempts:  5,
		LastError: &lastError,
	}
	deadLetter := &domain.DeadLetterItem{
		ID:           uuid.Must(uuid.NewV7()),
		TenantID:     item.TenantID,
		OutboxItemID: item.ID,
		ItemType:     item.ItemType,
		Reason:       "exhausted 5 attempts: provider down",
		FailedAt:     clock.Now().Add(-time.Hour),
	}

	txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	deadLetterRepo.On("GetByID", ctx, deadLetter.ID).Return(deadLetter, nil)
	itemRepo.On("GetByID", ctx, item.ID).Return(item, nil)
	itemRepo.On("Update", ctx, item).Return(nil)
	deadLetterRepo.On("MarkReplayed", ctx, deadLetter.ID, clock.Now(), "ops@example.com").Return(nil)

	err := useCase.Replay(ctx, deadLetter.ID, "ops@example.com")

	require.NoError(t, err)
	assert.Equal(t, domain.OutboxItemStatusPending, item.Status)
	assert.Equal(t, 0, item.Attempts)
	assert.Equal(t, clock.Now(), item.NextAttemptAt)
	assert.Nil(t, item.LastError)

	itemRepo.AssertExpectations(t)
	deadLetterRepo.AssertExpectations(t)
	txManager.AssertExpectations(t)
}

func TestReplayUseCase_Replay_AlreadyReplayed(t *testing.T) {
	itemRepo := &MockOutboxItemRepository{}
	deadLetterRepo := &MockDeadLetterRepository{}
	txManager := &MockTxManager{}
	clock := clockwork.NewFakeClock()
	useCase := NewReplayUseCase(itemRepo, deadLetterRepo, txManager, clock, nil)

	ctx := context.Background()
	replayedAt := clock.Now().Add(-time.Minute)
	deadLetter := &domain.DeadLetterItem{
		ID:           uuid.Must(uuid.NewV7()),
		OutboxItemID: uuid.Must(uuid.NewV7()),
		ReplayedAt:   &replayedAt,
	}

	txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	deadLetterRepo.On("GetByID", ctx, deadLetter.ID).Return(deadLetter, nil)

	err := useCase.Replay(ctx, deadLetter.ID, "ops@example.com")

	assert.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	itemRepo.AssertNotCalled(t, "Update")
	deadLetterRepo.AssertNotCalled(t, "MarkReplayed")
}

func TestReplayUseCase_Replay_NotFound(t *testing.T) {
	itemRepo := &MockOutboxItemRepository{}
	deadLetterRepo := &MockDeadLetterRepository{}
	txManager := &MockTxManager{}
	clock := clockwork.NewFakeClock()
	useCase := NewReplayUseCase(itemRepo, deadLetterRepo, txManager, clock, nil)

	ctx := context.Background()
	missingID := uuid.Must(uuid.NewV7())

	txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	deadLetterRepo.On("GetByID", ctx, missingID).Return(nil, apperrors.ErrNotFound)

	err := useCase.Replay(ctx, missingID, "ops@example.com")

	assert.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestReplayUseCase_ListDeadLetters(t *testing.T) {
	itemRepo := &MockOutboxItemRepository{}
	deadLetterRepo := &MockDeadLetterRepository{}
	txManager := &MockTxManager{}
	clock := clockwork.NewFakeClock()
	useCase := NewReplayUseCase(itemRepo, deadLetterRepo, txManager, clock, nil)

	ctx := context.Background()
	expected := []*domain.DeadLetterItem{
		{ID: uuid.Must(uuid.NewV7())},
		{ID: uuid.Must(uuid.NewV7())},
	}

	deadLetterRepo.On("List", ctx, 0, 50).Return(expected, nil)

	items, err := useCase.ListDeadLetters(ctx, 0, 50)

	require.NoError(t, err)
	assert.Len(t, items, 2)
	deadLetterRepo.AssertExpectations(t)
}

func TestReplayUseCase_ListDeadLetters_Error(t *testing.T) {
	itemRepo := &MockOutboxItemRepository{}
	deadLetterRepo := &MockDeadLetterRepository{}
	txManager := &MockTxManager{}
	clock := clockwork.NewFakeClock()
	useCase := NewReplayUseCase(itemRepo, deadLetterRepo, txManager, clock, nil)

	ctx := context.Background()
	listErr := errors.New("connection refused")

	deadLetterRepo.On("List", ctx, 0, 50).Return(nil, listErr)

	items, err := useCase.ListDeadLetters(ctx, 0, 50)

	assert.Error(t, err)
	assert.Nil(t, items)
	assert.Contains(t, err.Error(), "failed to list dead letters")
}
