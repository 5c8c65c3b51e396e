package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the playbook run lifecycle state.
type RunStatus string

// Run statuses. STOPPED and COMPLETED are terminal; a run never leaves them.
const (
	RunStatusActive    RunStatus = "active"
	RunStatusStopped   RunStatus = "stopped"
	RunStatusCompleted RunStatus = "completed"
)

// StopReason records why a run stopped early.
type StopReason string

// Stop reasons, listed in evaluation precedence order.
const (
	StopReasonCaseClosed         StopReason = "CASE_CLOSED"
	StopReasonGuardianReplied    StopReason = "GUARDIAN_REPLIED"
	StopReasonAttendanceImproved StopReason = "ATTENDANCE_IMPROVED"
)

// Run is one playbook applied to one (student, guardian) pair. CurrentStep is
// the index of the next step to execute; it only ever increases. NextStepDueAt
// stays set after the final step so the run is observed one more tick and
// transitioned to completed, at which point the schedule is cleared.
type Run struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	PlaybookID    uuid.UUID
	StudentID     uuid.UUID
	GuardianID    uuid.UUID
	Status        RunStatus
	CurrentStep   int
	NextStepDueAt *time.Time
	StopReason    *StopReason
	TriggeredAt   time.Time
	StoppedAt     *time.Time
	EscalatedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Terminal reports whether the run is in a terminal state.
func (r *Run) Terminal() bool {
	return r.Status == RunStatusStopped || r.Status == RunStatusCompleted
}

// StepIdempotencyKey builds the outbox key for one step send. Repeated
// advances of the same step collapse onto one outbox item.
func StepIdempotencyKey(runID, stepID, guardianID uuid.UUID) string {
	return fmt.Sprintf("playbook:%s:%s:%s", runID, stepID, guardianID)
}

// EscalationIdempotencyKey builds the outbox key for a run's single
// escalation item.
func EscalationIdempotencyKey(runID uuid.UUID) string {
	return fmt.Sprintf("playbook-escalation:%s", runID)
}
