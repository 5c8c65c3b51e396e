package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	outboxDomain "github.com/allisson/schoolops/internal/outbox/domain"
	"github.com/allisson/schoolops/internal/playbook/domain"
)

func TestEscalateCaseHandler_Handle(t *testing.T) {
	escalationRepo := &MockCaseEscalationRepository{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	handler := NewEscalateCaseHandler(escalationRepo, clock, nil)

	request := domain.EscalationRequest{
		TenantID:   uuid.Must(uuid.NewV7()),
		RunID:      uuid.Must(uuid.NewV7()),
		StudentID:  uuid.Must(uuid.NewV7()),
		GuardianID: uuid.Must(uuid.NewV7()),
	}
	payload, err := request.Encode()
	require.NoError(t, err)

	ctx := context.Background()
	var captured *domain.CaseEscalation
	escalationRepo.On("Create", ctx, mock.AnythingOfType("*domain.CaseEscalation")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*domain.CaseEscalation)
		}).
		Return(true, nil)

	err = handler.Handle(ctx, &outboxDomain.OutboxItem{
		ItemType: domain.ItemTypeEscalateCase,
		Payload:  payload,
	})

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, request.RunID, captured.RunID)
	assert.Equal(t, request.StudentID, captured.StudentID)
	assert.Equal(t, clock.Now(), captured.EscalatedAt)
}

func TestEscalateCaseHandler_Handle_RedeliveryIsNoOp(t *testing.T) {
	escalationRepo := &MockCaseEscalationRepository{}
	handler := NewEscalateCaseHandler(escalationRepo, clockwork.NewFakeClock(), nil)

	payload, err := domain.EscalationRequest{
		TenantID: uuid.Must(uuid.NewV7()),
		RunID:    uuid.Must(uuid.NewV7()),
	}.Encode()
	require.NoError(t, err)

	ctx := context.Background()
	escalationRepo.On("Create", ctx, mock.AnythingOfType("*domain.CaseEscalation")).Return(false, nil)

	err = handler.Handle(ctx, &outboxDomain.OutboxItem{Payload: payload})

	assert.NoError(t, err)
}

func TestEscalateCaseHandler_Handle_MalformedPayload(t *testing.T) {
	escalationRepo := &MockCaseEscalationRepository{}
	handler := NewEscalateCaseHandler(escalationRepo, clockwork.NewFakeClock(), nil)

	err := handler.Handle(context.Background(), &outboxDomain.OutboxItem{Payload: "{broken"})

	assert.Error(t, err)
	escalationRepo.AssertNotCalled(t, "Create")
}
