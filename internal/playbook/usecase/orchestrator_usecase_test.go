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

	messagingDomain "github.com/allisson/schoolops/internal/messaging/domain"
	outboxDomain "github.com/allisson/schoolops/internal/outbox/domain"
	outboxUsecase "github.com/allisson/schoolops/internal/outbox/usecase"
	"github.com/allisson/schoolops/internal/playbook/domain"
)

type orchestratorFixture struct {
	definitionRepo *MockDefinitionRepository
	runRepo        *MockRunRepository
	logRepo        *MockExecutionLogRepository
	telemetryRepo  *MockTelemetryRepository
	triggerRepo    *MockTriggerEventRepository
	stateRepo      *MockStudentStateRepository
	enqueuer       *MockEnqueuer
	txManager      *MockTxManager
	clock          *clockwork.FakeClock
	useCase        *OrchestratorUseCase
}

func newOrchestratorFixture(at time.Time) *orchestratorFixture {
	f := &orchestratorFixture{
		definitionRepo: &MockDefinitionRepository{},
		runRepo:        &MockRunRepository{},
		logRepo:        &MockExecutionLogRepository{},
		telemetryRepo:  &MockTelemetryRepository{},
		triggerRepo:    &MockTriggerEventRepository{},
		stateRepo:      &MockStudentStateRepository{},
		enqueuer:       &MockEnqueuer{},
		txManager:      &MockTxManager{},
		clock:          clockwork.NewFakeClockAt(at),
	}
	f.useCase = NewOrchestratorUseCase(
		f.definitionRepo, f.runRepo, f.logRepo, f.telemetryRepo, f.triggerRepo,
		f.stateRepo, f.enqueuer, f.txManager, NewEvaluator(),
		OrchestratorConfig{RunBatchSize: 50, TriggerWindowDays: 14},
		f.clock, nil, nil,
	)
	return f
}

func threeStepDefinition(tenantID uuid.UUID) *domain.Definition {
	definitionID := uuid.Must(uuid.NewV7())
	return &domain.Definition{
		ID:           definitionID,
		TenantID:     tenantID,
		Name:         "attendance-outreach",
		TriggerStage: "attendance_concern",
		Active:       true,
		Steps: []domain.Step{
			{ID: uuid.Must(uuid.NewV7()), DefinitionID: definitionID, Position: 0, OffsetDays: 0, Channel: "sms", TemplateRef: "outreach-day-0"},
			{ID: uuid.Must(uuid.NewV7()), DefinitionID: definitionID, Position: 1, OffsetDays: 3, Channel: "sms", TemplateRef: "outreach-day-3"},
			{ID: uuid.Must(uuid.NewV7()), DefinitionID: definitionID, Position: 2, OffsetDays: 7, Channel: "sms", TemplateRef: "outreach-day-10"},
		},
	}
}

func TestOrchestratorUseCase_SeedRuns(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	f := newOrchestratorFixture(t0)

	tenantID := uuid.Must(uuid.NewV7())
	definition := threeStepDefinition(tenantID)
	studentID := uuid.Must(uuid.NewV7())
	guardianA := uuid.Must(uuid.NewV7())
	guardianB := uuid.Must(uuid.NewV7())
	event := &domain.TriggerEvent{
		ID:         uuid.Must(uuid.NewV7()),
		TenantID:   tenantID,
		StudentID:  studentID,
		Stage:      "attendance_concern",
		OccurredAt: t0.AddDate(0, 0, -1),
	}

	ctx := context.Background()
	since := t0.AddDate(0, 0, -14)

	f.definitionRepo.On("GetActiveDefinitions", ctx).Return([]*domain.Definition{definition}, nil)
	f.triggerRepo.On("GetRecentByStage", ctx, tenantID, "attendance_concern", since).
		Return([]*domain.TriggerEvent{event}, nil)
	f.stateRepo.On("GetGuardianIDs", ctx, tenantID, studentID).
		Return([]uuid.UUID{guardianA, guardianB}, nil)

	var seeded []*domain.Run
	f.runRepo.On("Create", ctx, mock.AnythingOfType("*domain.Run")).
		Run(func(args mock.Arguments) {
			seeded = append(seeded, args.Get(1).(*domain.Run))
		}).
		Return(true, nil)
	f.telemetryRepo.On("Create", ctx, mock.AnythingOfType("*domain.TelemetryEvent")).Return(nil)

	err := f.useCase.SeedRuns(ctx)

	require.NoError(t, err)
	require.Len(t, seeded, 2)
	for _, run := range seeded {
		assert.Equal(t, domain.RunStatusActive, run.Status)
		assert.Equal(t, 0, run.CurrentStep)
		assert.Equal(t, event.OccurredAt, run.TriggeredAt)
		// First step has offset 0, so the run is due at the trigger time.
		require.NotNil(t, run.NextStepDueAt)
		assert.Equal(t, event.OccurredAt, *run.NextStepDueAt)
	}
	assert.Equal(t, guardianA, seeded[0].GuardianID)
	assert.Equal(t, guardianB, seeded[1].GuardianID)
	f.telemetryRepo.AssertNumberOfCalls(t, "Create", 2)
}

func TestOrchestratorUseCase_SeedRuns_NoGuardiansNoRun(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	f := newOrchestratorFixture(t0)

	tenantID := uuid.Must(uuid.NewV7())
	definition := threeStepDefinition(tenantID)
	event := &domain.TriggerEvent{
		ID:         uuid.Must(uuid.NewV7()),
		TenantID:   tenantID,
		StudentID:  uuid.Must(uuid.NewV7()),
		Stage:      "attendance_concern",
		OccurredAt: t0,
	}

	ctx := context.Background()

	f.definitionRepo.On("GetActiveDefinitions", ctx).Return([]*domain.Definition{definition}, nil)
	f.triggerRepo.On("GetRecentByStage", ctx, tenantID, "attendance_concern", mock.Anything).
		Return([]*domain.TriggerEvent{event}, nil)
	f.stateRepo.On("GetGuardianIDs", ctx, tenantID, event.StudentID).Return([]uuid.UUID{}, nil)

	err := f.useCase.SeedRuns(ctx)

	require.NoError(t, err)
	f.runRepo.AssertNotCalled(t, "Create")
}

func TestOrchestratorUseCase_SeedRuns_DuplicateEventIsNoOp(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	f := newOrchestratorFixture(t0)

	tenantID := uuid.Must(uuid.NewV7())
	definition := threeStepDefinition(tenantID)
	event := &domain.TriggerEvent{
		ID:         uuid.Must(uuid.NewV7()),
		TenantID:   tenantID,
		StudentID:  uuid.Must(uuid.NewV7()),
		Stage:      "attendance_concern",
		OccurredAt: t0,
	}

	ctx := context.Background()

	f.definitionRepo.On("GetActiveDefinitions", ctx).Return([]*domain.Definition{definition}, nil)
	f.triggerRepo.On("GetRecentByStage", ctx, tenantID, "attendance_concern", mock.Anything).
		Return([]*domain.TriggerEvent{event}, nil)
	f.stateRepo.On("GetGuardianIDs", ctx, tenantID, event.StudentID).
		Return([]uuid.UUID{uuid.Must(uuid.NewV7())}, nil)
	f.runRepo.On("Create", ctx, mock.AnythingOfType("*domain.Run")).Return(false, nil)

	err := f.useCase.SeedRuns(ctx)

	require.NoError(t, err)
	// An already seeded (event, guardian) pair emits no telemetry.
	f.telemetryRepo.AssertNotCalled(t, "Create")
}

// Walks a 3-step run (offsets 0, 3, 7 days) through its whole life: step
// sends at T0, T0+3d, T0+10d, then completion on the tick after the last
// step. The step index advances by exactly one per tick and never decreases.
func TestOrchestratorUseCase_AdvanceRuns_ThreeStepWalk(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	f := newOrchestratorFixture(t0)

	tenantID := uuid.Must(uuid.NewV7())
	definition := threeStepDefinition(tenantID)
	due := t0
	run := &domain.Run{
		ID:            uuid.Must(uuid.NewV7()),
		TenantID:      tenantID,
		PlaybookID:    definition.ID,
		StudentID:     uuid.Must(uuid.NewV7()),
		GuardianID:    uuid.Must(uuid.NewV7()),
		Status:        domain.RunStatusActive,
		CurrentStep:   0,
		NextStepDueAt: &due,
		TriggeredAt:   t0,
	}

	ctx := context.Background()

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.runRepo.On("GetDueRuns", ctx, 50).Return([]*domain.Run{run}, nil)
	f.runRepo.On("Update", ctx, run).Return(nil)
	f.definitionRepo.On("GetByID", ctx, definition.ID).Return(definition, nil)
	f.stateRepo.On("GetStudentState", ctx, tenantID, run.StudentID, run.GuardianID).
		Return(&domain.StudentState{}, nil)
	f.stateRepo.On("GetGuardianChannels", ctx, tenantID, run.GuardianID).
		Return([]string{"sms"}, nil)
	f.logRepo.On("Create", ctx, mock.AnythingOfType("*domain.ExecutionLog")).Return(true, nil)
	f.telemetryRepo.On("Create", ctx, mock.AnythingOfType("*domain.TelemetryEvent")).Return(nil)

	var enqueued []outboxUsecase.EnqueueInput
	f.enqueuer.On("Enqueue", ctx, mock.AnythingOfType("usecase.EnqueueInput")).
		Run(func(args mock.Arguments) {
			enqueued = append(enqueued, args.Get(1).(outboxUsecase.EnqueueInput))
		}).
		Return(&outboxDomain.OutboxItem{ID: uuid.Must(uuid.NewV7())}, nil)

	// Tick at T0: step 0 sent, next due anchored at T0+3d.
	require.NoError(t, f.useCase.AdvanceRuns(ctx))
	assert.Equal(t, 1, run.CurrentStep)
	require.NotNil(t, run.NextStepDueAt)
	assert.Equal(t, t0.AddDate(0, 0, 3), *run.NextStepDueAt)
	assert.Equal(t, domain.RunStatusActive, run.Status)

	// Tick at T0+3d: step 1 sent, next due T0+10d.
	f.clock.Advance(3 * 24 * time.Hour)
	require.NoError(t, f.useCase.AdvanceRuns(ctx))
	assert.Equal(t, 2, run.CurrentStep)
	assert.Equal(t, t0.AddDate(0, 0, 10), *run.NextStepDueAt)

	// Tick at T0+10d: final step sent; the due time stays put so the run is
	// observed one more time.
	f.clock.Advance(7 * 24 * time.Hour)
	require.NoError(t, f.useCase.AdvanceRuns(ctx))
	assert.Equal(t, 3, run.CurrentStep)
	require.NotNil(t, run.NextStepDueAt)
	assert.Equal(t, t0.AddDate(0, 0, 10), *run.NextStepDueAt)
	assert.Equal(t, domain.RunStatusActive, run.Status)

	// Following tick: no steps remain, the run completes and the schedule is
	// cleared.
	require.NoError(t, f.useCase.AdvanceRuns(ctx))
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Nil(t, run.NextStepDueAt)

	require.Len(t, enqueued, 3)
	seen := map[string]bool{}
	for i, input := range enqueued {
		assert.Equal(t, messagingDomain.ItemTypeSendMessage, input.ItemType)
		assert.Equal(t, tenantID, input.TenantID)
		assert.Equal(t,
			domain.StepIdempotencyKey(run.ID, definition.Steps[i].ID, run.GuardianID),
			input.IdempotencyKey,
		)
		seen[input.IdempotencyKey] = true
	}
	assert.Len(t, seen, 3)
}

func TestOrchestratorUseCase_AdvanceRuns_StopVerdictStopsRun(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	f := newOrchestratorFixture(t0)

	tenantID := uuid.Must(uuid.NewV7())
	definition := threeStepDefinition(tenantID)
	due := t0
	run := &domain.Run{
		ID:            uuid.Must(uuid.NewV7()),
		TenantID:      tenantID,
		PlaybookID:    definition.ID,
		StudentID:     uuid.Must(uuid.NewV7()),
		GuardianID:    uuid.Must(uuid.NewV7()),
		Status:        domain.RunStatusActive,
		NextStepDueAt: &due,
		TriggeredAt:   t0.AddDate(0, 0, -1),
	}

	ctx := context.Background()
	caseStatus := CaseStatusClosed

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.runRepo.On("GetDueRuns", ctx, 50).Return([]*domain.Run{run}, nil)
	f.runRepo.On("Update", ctx, run).Return(nil)
	f.definitionRepo.On("GetByID", ctx, definition.ID).Return(definition, nil)
	f.stateRepo.On("GetStudentState", ctx, tenantID, run.StudentID, run.GuardianID).
		Return(&domain.StudentState{CaseStatus: &caseStatus}, nil)

	var telemetryTypes []string
	f.telemetryRepo.On("Create", ctx, mock.AnythingOfType("*domain.TelemetryEvent")).
		Run(func(args mock.Arguments) {
			telemetryTypes = append(telemetryTypes, args.Get(1).(*domain.TelemetryEvent).EventType)
		}).
		Return(nil)

	require.NoError(t, f.useCase.AdvanceRuns(ctx))

	assert.Equal(t, domain.RunStatusStopped, run.Status)
	require.NotNil(t, run.StopReason)
	assert.Equal(t, domain.StopReasonCaseClosed, *run.StopReason)
	assert.Nil(t, run.NextStepDueAt)
	require.NotNil(t, run.StoppedAt)
	assert.Equal(t, []string{domain.TelemetryPlaybookStopped}, telemetryTypes)
	f.enqueuer.AssertNotCalled(t, "Enqueue")
}

func TestOrchestratorUseCase_AdvanceRuns_FallbackChannel(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	f := newOrchestratorFixture(t0)

	tenantID := uuid.Must(uuid.NewV7())
	definition := threeStepDefinition(tenantID)
	fallback := "email"
	definition.Steps[0].FallbackChannel = &fallback
	due := t0
	run := &domain.Run{
		ID:            uuid.Must(uuid.NewV7()),
		TenantID:      tenantID,
		PlaybookID:    definition.ID,
		StudentID:     uuid.Must(uuid.NewV7()),
		GuardianID:    uuid.Must(uuid.NewV7()),
		Status:        domain.RunStatusActive,
		NextStepDueAt: &due,
		TriggeredAt:   t0,
	}

	ctx := context.Background()

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.runRepo.On("GetDueRuns", ctx, 50).Return([]*domain.Run{run}, nil)
	f.runRepo.On("Update", ctx, run).Return(nil)
	f.definitionRepo.On("GetByID", ctx, definition.ID).Return(definition, nil)
	f.stateRepo.On("GetStudentState", ctx, tenantID, run.StudentID, run.GuardianID).
		Return(&domain.StudentState{}, nil)
	// Guardian is only reachable by email, so the sms step falls back.
	f.stateRepo.On("GetGuardianChannels", ctx, tenantID, run.GuardianID).
		Return([]string{"email"}, nil)
	f.telemetryRepo.On("Create", ctx, mock.AnythingOfType("*domain.TelemetryEvent")).Return(nil)

	var capturedLog *domain.ExecutionLog
	f.logRepo.On("Create", ctx, mock.AnythingOfType("*domain.ExecutionLog")).
		Run(func(args mock.Arguments) {
			capturedLog = args.Get(1).(*domain.ExecutionLog)
		}).
		Return(true, nil)

	var capturedInput outboxUsecase.EnqueueInput
	f.enqueuer.On("Enqueue", ctx, mock.AnythingOfType("usecase.EnqueueInput")).
		Run(func(args mock.Arguments) {
			capturedInput = args.Get(1).(outboxUsecase.EnqueueInput)
		}).
		Return(&outboxDomain.OutboxItem{ID: uuid.Must(uuid.NewV7())}, nil)

	require.NoError(t, f.useCase.AdvanceRuns(ctx))

	request, err := messagingDomain.DecodeSendRequest(capturedInput.Payload)
	require.NoError(t, err)
	assert.Equal(t, "email", request.Channel)
	require.NotNil(t, capturedLog)
	assert.Equal(t, "email", capturedLog.Channel)
	require.NotNil(t, capturedLog.OutboxItemID)
}

func TestOrchestratorUseCase_AdvanceRuns_Escalation(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	f := newOrchestratorFixture(t0)

	tenantID := uuid.Must(uuid.NewV7())
	definition := threeStepDefinition(tenantID)
	definition.EscalationAfterDays = 2
	due := t0
	run := &domain.Run{
		ID:            uuid.Must(uuid.NewV7()),
		TenantID:      tenantID,
		PlaybookID:    definition.ID,
		StudentID:     uuid.Must(uuid.NewV7()),
		GuardianID:    uuid.Must(uuid.NewV7()),
		Status:        domain.RunStatusActive,
		CurrentStep:   1,
		NextStepDueAt: &due,
		TriggeredAt:   t0.AddDate(0, 0, -3),
	}

	ctx := context.Background()

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.runRepo.On("GetDueRuns", ctx, 50).Return([]*domain.Run{run}, nil)
	f.runRepo.On("Update", ctx, run).Return(nil)
	f.definitionRepo.On("GetByID", ctx, definition.ID).Return(definition, nil)
	f.stateRepo.On("GetStudentState", ctx, tenantID, run.StudentID, run.GuardianID).
		Return(&domain.StudentState{}, nil)
	f.stateRepo.On("GetGuardianChannels", ctx, tenantID, run.GuardianID).
		Return([]string{"sms"}, nil)
	f.logRepo.On("Create", ctx, mock.AnythingOfType("*domain.ExecutionLog")).Return(true, nil)
	f.telemetryRepo.On("Create", ctx, mock.AnythingOfType("*domain.TelemetryEvent")).Return(nil)

	var itemTypes []string
	f.enqueuer.On("Enqueue", ctx, mock.AnythingOfType("usecase.EnqueueInput")).
		Run(func(args mock.Arguments) {
			itemTypes = append(itemTypes, args.Get(1).(outboxUsecase.EnqueueInput).ItemType)
		}).
		Return(&outboxDomain.OutboxItem{ID: uuid.Must(uuid.NewV7())}, nil)

	require.NoError(t, f.useCase.AdvanceRuns(ctx))

	assert.Equal(t, []string{messagingDomain.ItemTypeSendMessage, domain.ItemTypeEscalateCase}, itemTypes)
	require.NotNil(t, run.EscalatedAt)
	assert.Equal(t, domain.RunStatusActive, run.Status)
}

func TestOrchestratorUseCase_AdvanceRuns_TerminalRunNeverTransitions(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	f := newOrchestratorFixture(t0)

	due := t0
	run := &domain.Run{
		ID:            uuid.Must(uuid.NewV7()),
		TenantID:      uuid.Must(uuid.NewV7()),
		PlaybookID:    uuid.Must(uuid.NewV7()),
		Status:        domain.RunStatusStopped,
		NextStepDueAt: &due,
	}

	ctx := context.Background()
	f.runRepo.On("GetDueRuns", ctx, 50).Return([]*domain.Run{run}, nil)

	require.NoError(t, f.useCase.AdvanceRuns(ctx))

	assert.Equal(t, domain.RunStatusStopped, run.Status)
	f.runRepo.AssertNotCalled(t, "Update")
	f.enqueuer.AssertNotCalled(t, "Enqueue")
}
