package domain

import (
	"time"

	"github.com/google/uuid"
)

// Telemetry event types emitted by the orchestration loop.
const (
	TelemetryRunStarted        = "RUN_STARTED"
	TelemetryStepSent          = "STEP_SENT"
	TelemetryPlaybookStopped   = "PLAYBOOK_STOPPED"
	TelemetryPlaybookEscalated = "PLAYBOOK_ESCALATED"
)

// TelemetryEvent is an append-only orchestration fact used for metrics
// aggregation. Never mutated.
type TelemetryEvent struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	RunID      uuid.UUID
	EventType  string
	OccurredAt time.Time
}
