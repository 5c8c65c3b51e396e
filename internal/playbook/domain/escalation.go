package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/schoolops/internal/errors"
)

// ItemTypeEscalateCase is the outbox item type for playbook escalations.
const ItemTypeEscalateCase = "case.escalate"

// EscalationRequest is the payload of a case.escalate outbox item.
type EscalationRequest struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	RunID      uuid.UUID `json:"run_id"`
	StudentID  uuid.UUID `json:"student_id"`
	GuardianID uuid.UUID `json:"guardian_id"`
}

// Encode serializes the request for an outbox payload.
func (r EscalationRequest) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to encode escalation request")
	}
	return string(data), nil
}

// DecodeEscalationRequest deserializes an outbox payload.
func DecodeEscalationRequest(payload string) (*EscalationRequest, error) {
	var request EscalationRequest
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode escalation request")
	}
	if request.TenantID == uuid.Nil || request.RunID == uuid.Nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "escalation request missing tenant or run")
	}
	return &request, nil
}

// CaseEscalation is the durable record the escalation handler produces for
// the safeguarding team. One per run.
type CaseEscalation struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	RunID       uuid.UUID
	StudentID   uuid.UUID
	EscalatedAt time.Time
}
