package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionLog statuses.
const (
	ExecutionLogStatusEnqueued = "enqueued"
)

// ExecutionLog is the write-once audit row for one step execution. The
// (run, step) pair is unique, which makes step execution idempotent even when
// two orchestrator instances race on the same due run.
type ExecutionLog struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	RunID          uuid.UUID
	StepID         uuid.UUID
	Channel        string
	OutboxItemID   *uuid.UUID
	Status         string
	IdempotencyKey string
	ScheduledFor   time.Time
	ExecutedAt     time.Time
}
