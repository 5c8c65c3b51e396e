package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerEvent is one row of the append-only trigger feed: a student entered
// a stage at some instant. The orchestrator only reads a bounded recent
// window of this feed.
type TriggerEvent struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	StudentID  uuid.UUID
	Stage      string
	OccurredAt time.Time
}

// StudentState is the read-model snapshot the stop evaluator consumes: the
// latest case status for the student, the guardian's most recent reply, and
// the most recent attendance-rate summary. Absent facts are nil.
type StudentState struct {
	CaseStatus          *string
	LastGuardianReplyAt *time.Time
	AttendanceRate      *float64
}
