package usecase

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	messagingDomain "github.com/allisson/schoolops/internal/messaging/domain"
	"github.com/allisson/schoolops/internal/metrics"
	outboxUsecase "github.com/allisson/schoolops/internal/outbox/usecase"
	"github.com/allisson/schoolops/internal/playbook/domain"
)

// JobName is the lease name the orchestration loop runs under.
const JobName = "playbook-orchestrator"

// DefinitionRepository defines catalog read operations.
type DefinitionRepository interface {
	GetActiveDefinitions(ctx context.Context) ([]*domain.Definition, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Definition, error)
}

// RunRepository defines run repository operations.
type RunRepository interface {
	Create(ctx context.Context, run *domain.Run) (bool, error)
	GetDueRuns(ctx context.Context, limit int) ([]*domain.Run, error)
	Update(ctx context.Context, run *domain.Run) error
}

// ExecutionLogRepository defines execution log operations.
type ExecutionLogRepository interface {
	Create(ctx context.Context, log *domain.ExecutionLog) (bool, error)
}

// TelemetryRepository defines telemetry append operations.
type TelemetryRepository interface {
	Create(ctx context.Context, event *domain.TelemetryEvent) error
}

// TriggerEventRepository defines trigger feed read operations.
type TriggerEventRepository interface {
	GetRecentByStage(ctx context.Context, tenantID uuid.UUID, stage string, since time.Time) ([]*domain.TriggerEvent, error)
}

// StudentStateRepository defines the read models consumed by seeding and the
// stop evaluator.
type StudentStateRepository interface {
	GetStudentState(ctx context.Context, tenantID, studentID, guardianID uuid.UUID) (*domain.StudentState, error)
	GetGuardianIDs(ctx context.Context, tenantID, studentID uuid.UUID) ([]uuid.UUID, error)
	GetGuardianChannels(ctx context.Context, tenantID, guardianID uuid.UUID) ([]string, error)
}

// OrchestratorConfig holds the orchestration loop settings.
type OrchestratorConfig struct {
	RunBatchSize      int
	TriggerWindowDays int
}

// OrchestratorUseCase seeds playbook runs from the trigger feed and advances
// due runs one step per tick, enqueuing outbound work through the outbox. It
// implements the scheduler Job interface and is driven by a lease-guarded
// runner.
type OrchestratorUseCase struct {
	definitionRepo DefinitionRepository
	runRepo        RunRepository
	logRepo        ExecutionLogRepository
	telemetryRepo  TelemetryRepository
	triggerRepo    TriggerEventRepository
	stateRepo      StudentStateRepository
	enqueuer       outboxUsecase.Enqueuer
	txManager      database.TxManager
	evaluator      *Evaluator
	config         OrchestratorConfig
	clock          clockwork.Clock
	logger         *slog.Logger
	metrics        metrics.BusinessMetrics
}

// NewOrchestratorUseCase creates a new OrchestratorUseCase.
func NewOrchestratorUseCase(
	definitionRepo DefinitionRepository,
	runRepo RunRepository,
	logRepo ExecutionLogRepository,
	telemetryRepo TelemetryRepository,
	triggerRepo TriggerEventRepository,
	stateRepo StudentStateRepository,
	enqueuer outboxUsecase.Enqueuer,
	txManager database.TxManager,
	evaluator *Evaluator,
	config OrchestratorConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
	businessMetrics metrics.BusinessMetrics,
) *OrchestratorUseCase {
	return &OrchestratorUseCase{
		definitionRepo: definitionRepo,
		runRepo:        runRepo,
		logRepo:        logRepo,
		telemetryRepo:  telemetryRepo,
		triggerRepo:    triggerRepo,
		stateRepo:      stateRepo,
		enqueuer:       enqueuer,
		txManager:      txManager,
		evaluator:      evaluator,
		config:         config,
		clock:          clock,
		logger:         logger,
		metrics:        businessMetrics,
	}
}

// Name returns the job name used for lease acquisition.
func (uc *OrchestratorUseCase) Name() string {
	return JobName
}

// Run executes one orchestration tick: seed new runs, then advance due ones.
func (uc *OrchestratorUseCase) Run(ctx context.Context) error {
	if err := uc.SeedRuns(ctx); err != nil {
		return err
	}
	return uc.AdvanceRuns(ctx)
}

// SeedRuns creates one active run per (trigger event, linked guardian) for
// every active definition. The run table's unique constraint makes repeated
// seeding of the same event a no-op, so no separate seen-marker is needed.
func (uc *OrchestratorUseCase) SeedRuns(ctx context.Context) error {
	definitions, err := uc.definitionRepo.GetActiveDefinitions(ctx)
	if err != nil {
		return apperrors.Wrap(err, "failed to load active definitions")
	}

	since := uc.clock.Now().AddDate(0, 0, -uc.config.TriggerWindowDays)

	for _, definition := range definitions {
		if definition.FirstStep() == nil {
			continue
		}
		if err := uc.seedDefinition(ctx, definition, since); err != nil {
			// One broken definition must not starve the rest.
			if uc.logger != nil {
				uc.logger.Error("seeding failed for definition",
					slog.String("definition_id", definition.ID.String()),
					slog.Any("error", err),
				)
			}
		}
	}

	return nil
}

func (uc *OrchestratorUseCase) seedDefinition(ctx context.Context, definition *domain.Definition, since time.Time) error {
	events, err := uc.triggerRepo.GetRecentByStage(ctx, definition.TenantID, definition.TriggerStage, since)
	if err != nil {
		return err
	}

	for _, event := range events {
		guardianIDs, err := uc.stateRepo.GetGuardianIDs(ctx, definition.TenantID, event.StudentID)
		if err != nil {
			return err
		}
		// No linked guardians, no run: orphan runs would never send anything.
		for _, guardianID := range guardianIDs {
			if err := uc.seedRun(ctx, definition, event, guardianID); err != nil {
				return err
			}
		}
	}

	return nil
}

func (uc *OrchestratorUseCase) seedRun(
	ctx context.Context,
	definition *domain.Definition,
	event *domain.TriggerEvent,
	guardianID uuid.UUID,
) error {
	due := event.OccurredAt.AddDate(0, 0, definition.FirstStep().OffsetDays)
	run := &domain.Run{
		ID:            uuid.Must(uuid.NewV7()),
		TenantID:      definition.TenantID,
		PlaybookID:    definition.ID,
		StudentID:     event.StudentID,
		GuardianID:    guardianID,
		Status:        domain.RunStatusActive,
		CurrentStep:   0,
		NextStepDueAt: &due,
		TriggeredAt:   event.OccurredAt,
	}

	created, err := uc.runRepo.Create(ctx, run)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	uc.emitTelemetry(ctx, run, domain.TelemetryRunStarted)
	if uc.metrics != nil {
		uc.metrics.RecordOperation(ctx, "playbook", "run_seed", "success")
	}
	if uc.logger != nil {
		uc.logger.Info("playbook run seeded",
			slog.String("run_id", run.ID.String()),
			slog.String("playbook_id", definition.ID.String()),
			slog.String("student_id", event.StudentID.String()),
			slog.String("guardian_id", guardianID.String()),
			slog.Time("next_step_due_at", due),
		)
	}

	return nil
}

// AdvanceRuns processes every due run in the batch, isolating per-run
// failures so one broken run never stalls the loop.
func (uc *OrchestratorUseCase) AdvanceRuns(ctx context.Context) error {
	runs, err := uc.runRepo.GetDueRuns(ctx, uc.config.RunBatchSize)
	if err != nil {
		return apperrors.Wrap(err, "failed to load due runs")
	}

	for _, run := range runs {
		if err := uc.advanceRun(ctx, run); err != nil {
			if uc.logger != nil {
				uc.logger.Error("failed to advance playbook run",
					slog.String("run_id", run.ID.String()),
					slog.Any("error", err),
				)
			}
			if uc.metrics != nil {
				uc.metrics.RecordOperation(ctx, "playbook", "step_send", "error")
			}
		}
	}

	return nil
}

// advanceRun moves one due run forward by at most one step, inside a single
// transaction so the outbox item, the execution log and the run update commit
// together.
func (uc *OrchestratorUseCase) advanceRun(ctx context.Context, run *domain.Run) error {
	if run.Terminal() {
		return nil
	}

	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		definition, err := uc.definitionRepo.GetByID(ctx, run.PlaybookID)
		if err != nil {
			return err
		}

		if run.CurrentStep >= len(definition.Steps) {
			return uc.completeRun(ctx, run)
		}

		state, err := uc.stateRepo.GetStudentState(ctx, run.TenantID, run.StudentID, run.GuardianID)
		if err != nil {
			return err
		}

		if verdict := uc.evaluator.EvaluateStop(run, state); verdict.ShouldStop {
			return uc.stopRun(ctx, run, verdict.Reason)
		}

		if err := uc.executeStep(ctx, run, definition); err != nil {
			return err
		}

		if uc.evaluator.ShouldEscalate(run, definition, uc.clock.Now()) {
			return uc.escalateRun(ctx, run)
		}

		return nil
	})
}

func (uc *OrchestratorUseCase) completeRun(ctx context.Context, run *domain.Run) error {
	run.Status = domain.RunStatusCompleted
	run.NextStepDueAt = nil
	if err := uc.runRepo.Update(ctx, run); err != nil {
		return err
	}

	if uc.logger != nil {
		uc.logger.Info("playbook run completed", slog.String("run_id", run.ID.String()))
	}
	return nil
}

func (uc *OrchestratorUseCase) stopRun(ctx context.Context, run *domain.Run, reason domain.StopReason) error {
	now := uc.clock.Now()
	run.Status = domain.RunStatusStopped
	run.StopReason = &reason
	run.StoppedAt = &now
	run.NextStepDueAt = nil
	if err := uc.runRepo.Update(ctx, run); err != nil {
		return err
	}

	uc.emitTelemetry(ctx, run, domain.TelemetryPlaybookStopped)
	if uc.logger != nil {
		uc.logger.Info("playbook run stopped",
			slog.String("run_id", run.ID.String()),
			slog.String("reason", string(reason)),
		)
	}
	return nil
}

// executeStep enqueues the outbound send for the run's current step, records
// the audit row, and reschedules the run. The step's idempotency key makes a
// racing duplicate advance collapse onto one outbox item.
func (uc *OrchestratorUseCase) executeStep(ctx context.Context, run *domain.Run, definition *domain.Definition) error {
	step := definition.Steps[run.CurrentStep]
	scheduledFor := *run.NextStepDueAt
	now := uc.clock.Now()

	channel, err := uc.resolveChannel(ctx, run, &step)
	if err != nil {
		return err
	}

	request := messagingDomain.SendRequest{
		TenantID:    run.TenantID,
		GuardianID:  run.GuardianID,
		Channel:     channel,
		TemplateRef: step.TemplateRef,
		TemplateData: map[string]string{
			"student_id": run.StudentID.String(),
			"run_id":     run.ID.String(),
		},
	}
	payload, err := request.Encode()
	if err != nil {
		return err
	}

	key := domain.StepIdempotencyKey(run.ID, step.ID, run.GuardianID)
	item, err := uc.enqueuer.Enqueue(ctx, outboxUsecase.EnqueueInput{
		TenantID:       run.TenantID,
		ScopeID:        &run.StudentID,
		ItemType:       messagingDomain.ItemTypeSendMessage,
		Payload:        payload,
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}

	log := &domain.ExecutionLog{
		ID:             uuid.Must(uuid.NewV7()),
		TenantID:       run.TenantID,
		RunID:          run.ID,
		StepID:         step.ID,
		Channel:        channel,
		Status:         domain.ExecutionLogStatusEnqueued,
		IdempotencyKey: key,
		ScheduledFor:   scheduledFor,
		ExecutedAt:     now,
	}
	if item != nil {
		log.OutboxItemID = &item.ID
	}
	if _, err := uc.logRepo.Create(ctx, log); err != nil {
		return err
	}

	uc.emitTelemetry(ctx, run, domain.TelemetryStepSent)
	if uc.metrics != nil {
		uc.metrics.RecordOperation(ctx, "playbook", "step_send", "success")
	}

	// Advance exactly one step. The next due time is anchored to this step's
	// scheduled time, not to the wall clock, so a run that fell behind keeps
	// its original cadence. After the final step the due time is left in
	// place: the run is observed once more and completed then.
	run.CurrentStep++
	if run.CurrentStep < len(definition.Steps) {
		due := scheduledFor.AddDate(0, 0, definition.Steps[run.CurrentStep].OffsetDays)
		run.NextStepDueAt = &due
	}

	if err := uc.runRepo.Update(ctx, run); err != nil {
		return err
	}

	if uc.logger != nil {
		uc.logger.Info("playbook step sent",
			slog.String("run_id", run.ID.String()),
			slog.Int("step_position", step.Position),
			slog.String("channel", channel),
			slog.String("idempotency_key", key),
		)
	}

	return nil
}

// resolveChannel picks the step's channel, falling back when the guardian is
// not reachable on the primary one. With no channel information at all the
// primary is used and the send is left to fail downstream.
func (uc *OrchestratorUseCase) resolveChannel(ctx context.Context, run *domain.Run, step *domain.Step) (string, error) {
	channels, err := uc.stateRepo.GetGuardianChannels(ctx, run.TenantID, run.GuardianID)
	if err != nil {
		return "", err
	}
	if len(channels) == 0 || slices.Contains(channels, step.Channel) {
		return step.Channel, nil
	}
	if step.FallbackChannel != nil && slices.Contains(channels, *step.FallbackChannel) {
		return *step.FallbackChannel, nil
	}
	return step.Channel, nil
}

// escalateRun enqueues the run's single case.escalate item and stamps the
// run. The escalated-at stamp plus the idempotency key guarantee at most one
// escalation per run.
func (uc *OrchestratorUseCase) escalateRun(ctx context.Context, run *domain.Run) error {
	payload, err := domain.EscalationRequest{
		TenantID:   run.TenantID,
		RunID:      run.ID,
		StudentID:  run.StudentID,
		GuardianID: run.GuardianID,
	}.Encode()
	if err != nil {
		return err
	}

	_, err = uc.enqueuer.Enqueue(ctx, outboxUsecase.EnqueueInput{
		TenantID:       run.TenantID,
		ScopeID:        &run.StudentID,
		ItemType:       domain.ItemTypeEscalateCase,
		Payload:        payload,
		IdempotencyKey: domain.EscalationIdempotencyKey(run.ID),
	})
	if err != nil {
		return err
	}

	now := uc.clock.Now()
	run.EscalatedAt = &now
	if err := uc.runRepo.Update(ctx, run); err != nil {
		return err
	}

	uc.emitTelemetry(ctx, run, domain.TelemetryPlaybookEscalated)
	if uc.logger != nil {
		uc.logger.Warn("playbook run escalated", slog.String("run_id", run.ID.String()))
	}
	return nil
}

// emitTelemetry appends one fact; telemetry failures are logged and never
// fail the surrounding operation.
func (uc *OrchestratorUseCase) emitTelemetry(ctx context.Context, run *domain.Run, eventType string) {
	event := &domain.TelemetryEvent{
		ID:         uuid.Must(uuid.NewV7()),
		TenantID:   run.TenantID,
		RunID:      run.ID,
		EventType:  eventType,
		OccurredAt: uc.clock.Now(),
	}
	if err := uc.telemetryRepo.Create(ctx, event); err != nil && uc.logger != nil {
		uc.logger.Warn("failed to emit telemetry",
			slog.String("run_id", run.ID.String()),
			slog.String("event_type", eventType),
			slog.Any("error", err),
		)
	}
}
