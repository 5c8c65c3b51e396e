package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	outboxDomain "github.com/allisson/schoolops/internal/outbox/domain"
	outboxUsecase "github.com/allisson/schoolops/internal/outbox/usecase"
	"github.com/allisson/schoolops/internal/playbook/domain"
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

// MockDefinitionRepository is a mock implementation of DefinitionRepository
type MockDefinitionRepository struct {
	mock.Mock
}

func (m *MockDefinitionRepository) GetActiveDefinitions(ctx context.Context) ([]*domain.Definition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Definition), args.Error(1)
}

func (m *MockDefinitionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Definition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Definition), args.Error(1)
}

// MockRunRepository is a mock implementation of RunRepository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *domain.Run) (bool, error) {
	args := m.Called(ctx, run)
	return args.Bool(0), args.Error(1)
}

func (m *MockRunRepository) GetDueRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Run), args.Error(1)
}

func (m *MockRunRepository) Update(ctx context.Context, run *domain.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// MockExecutionLogRepository is a mock implementation of ExecutionLogRepository
type MockExecutionLogRepository struct {
	mock.Mock
}

func (m *MockExecutionLogRepository) Create(ctx context.Context, log *domain.ExecutionLog) (bool, error) {
	args := m.Called(ctx, log)
	return args.Bool(0), args.Error(1)
}

// MockTelemetryRepository is a mock implementation of TelemetryRepository
type MockTelemetryRepository struct {
	mock.Mock
}

func (m *MockTelemetryRepository) Create(ctx context.Context, event *domain.TelemetryEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockTriggerEventRepository is a mock implementation of TriggerEventRepository
type MockTriggerEventRepository struct {
	mock.Mock
}

func (m *MockTriggerEventRepository) GetRecentByStage(
	ctx context.Context,
	tenantID uuid.UUID,
	stage string,
	since time.Time,
) ([]*domain.TriggerEvent, error) {
	args := m.Called(ctx, tenantID, stage, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TriggerEvent), args.Error(1)
}

// MockStudentStateRepository is a mock implementation of StudentStateRepository
type MockStudentStateRepository struct {
	mock.Mock
}

func (m *MockStudentStateRepository) GetStudentState(
	ctx context.Context,
	tenantID, studentID, guardianID uuid.UUID,
) (*domain.StudentState, error) {
	args := m.Called(ctx, tenantID, studentID, guardianID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StudentState), args.Error(1)
}

func (m *MockStudentStateRepository) GetGuardianIDs(
	ctx context.Context,
	tenantID, studentID uuid.UUID,
) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockStudentStateRepository) GetGuardianChannels(
	ctx context.Context,
	tenantID, guardianID uuid.UUID,
) ([]string, error) {
	args := m.Called(ctx, tenantID, guardianID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockEnqueuer is a mock implementation of the outbox Enqueuer
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(
	ctx context.Context,
	input outboxUsecase.EnqueueInput,
) (*outboxDomain.OutboxItem, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outboxDomain.OutboxItem), args.Error(1)
}

// MockCaseEscalationRepository is a mock implementation of CaseEscalationRepository
type MockCaseEscalationRepository struct {
	mock.Mock
}

func (m *MockCaseEscalationRepository) Create(ctx context.Context, escalation *domain.CaseEscalation) (bool, error) {
	args := m.Called(ctx, escalation)
	return args.Bool(0), args.Error(1)
}
