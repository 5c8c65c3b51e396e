package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	outboxDomain "github.com/allisson/schoolops/internal/outbox/domain"
	"github.com/allisson/schoolops/internal/playbook/domain"
)

// CaseEscalationRepository defines escalation record operations.
type CaseEscalationRepository interface {
	Create(ctx context.Context, escalation *domain.CaseEscalation) (bool, error)
}

// EscalateCaseHandler is the outbox handler for case.escalate items: it
// records a durable escalation for the safeguarding team. The insert-if-absent
// write makes at-least-once delivery safe.
type EscalateCaseHandler struct {
	escalationRepo CaseEscalationRepository
	clock          clockwork.Clock
	logger         *slog.Logger
}

// NewEscalateCaseHandler creates a new EscalateCaseHandler.
func NewEscalateCaseHandler(escalationRepo CaseEscalationRepository, clock clockwork.Clock, logger *slog.Logger) *EscalateCaseHandler {
	return &EscalateCaseHandler{
		escalationRepo: escalationRepo,
		clock:          clock,
		logger:         logger,
	}
}

// Handle processes one case.escalate outbox item.
func (h *EscalateCaseHandler) Handle(ctx context.Context, item *outboxDomain.OutboxItem) error {
	request, err := domain.DecodeEscalationRequest(item.Payload)
	if err != nil {
		return err
	}

	created, err := h.escalationRepo.Create(ctx, &domain.CaseEscalation{
		ID:          uuid.Must(uuid.NewV7()),
		TenantID:    request.TenantID,
		RunID:       request.RunID,
		StudentID:   request.StudentID,
		EscalatedAt: h.clock.Now(),
	})
	if err != nil {
		return err
	}

	if h.logger != nil && created {
		h.logger.Warn("case escalation recorded",
			slog.String("run_id", request.RunID.String()),
			slog.String("student_id", request.StudentID.String()),
		)
	}
	return nil
}
