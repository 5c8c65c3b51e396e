package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	outboxDomain "github.com/allisson/schoolops/internal/outbox/domain"
	outboxUsecase "github.com/allisson/schoolops/internal/outbox/usecase"
	"github.com/allisson/schoolops/internal/tierreview/domain"
)

// MockTierRepository is a mock implementation of TierRepository.
type MockTierRepository struct {
	mock.Mock
}

func (m *MockTierRepository) GetLatestRates(ctx context.Context) ([]*domain.StudentRate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StudentRate), args.Error(1)
}

func (m *MockTierRepository) GetCurrentTier(ctx context.Context, tenantID, studentID uuid.UUID) (*domain.TierAssignment, error) {
	args := m.Called(ctx, tenantID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TierAssignment), args.Error(1)
}

func (m *MockTierRepository) UpsertTier(ctx context.Context, assignment *domain.TierAssignment) error {
	args := m.Called(ctx, assignment)
	return args.Error(0)
}

func (m *MockTierRepository) CreateReviewTask(ctx context.Context, task *domain.ReviewTask) (bool, error) {
	args := m.Called(ctx, task)
	return args.Bool(0), args.Error(1)
}

// MockEnqueuer is a mock implementation of outbox usecase Enqueuer.
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, input outboxUsecase.EnqueueInput) (*outboxDomain.OutboxItem, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outboxDomain.OutboxItem), args.Error(1)
}
