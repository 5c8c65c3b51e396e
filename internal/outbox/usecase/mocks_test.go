package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/schoolops/internal/outbox/domain"
)

// MockTxManager is a mock implementation of database.TxManager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	// Execute the function to test the logic inside
	return fn(ctx)
}

// MockOutboxItemRepository is a mock implementation of OutboxItemRepository
type MockOutboxItemRepository struct {
	mock.Mock
}

func (m *MockOutboxItemRepository) Create(ctx context.Context, item *domain.OutboxItem) (bool, error) {
	args := m.Called(ctx, item)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxItemRepository) GetDueItems(ctx context.Context, limit int) ([]*domain.OutboxItem, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxItem), args.Error(1)
}

func (m *MockOutboxItemRepository) Update(ctx context.Context, item *domain.OutboxItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockOutboxItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxItem), args.Error(1)
}

// MockDeadLetterRepository is a mock implementation of DeadLetterRepository
type MockDeadLetterRepository struct {
	mock.Mock
}

func (m *MockDeadLetterRepository) Create(ctx context.Context, item *domain.DeadLetterItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockDeadLetterRepository) List(ctx context.Context, offset, limit int) ([]*domain.DeadLetterItem, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DeadLetterItem), args.Error(1)
}

func (m *MockDeadLetterRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetterItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeadLetterItem), args.Error(1)
}

func (m *MockDeadLetterRepository) MarkReplayed(
	ctx context.Context,
	id uuid.UUID,
	replayedAt time.Time,
	replayedBy string,
) error {
	args := m.Called(ctx, id, replayedAt, replayedBy)
	return args.Error(0)
}
