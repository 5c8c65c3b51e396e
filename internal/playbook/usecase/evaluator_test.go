package usecase

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/allisson/schoolops/internal/playbook/domain"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }

func activeRun(triggeredAt time.Time) *domain.Run {
	return &domain.Run{
		ID:          uuid.Must(uuid.NewV7()),
		Status:      domain.RunStatusActive,
		TriggeredAt: triggeredAt,
	}
}

func TestEvaluator_EvaluateStop(t *testing.T) {
	evaluator := NewEvaluator()
	triggeredAt := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	afterTrigger := triggeredAt.Add(48 * time.Hour)
	beforeTrigger := triggeredAt.Add(-48 * time.Hour)

	tests := []struct {
		name       string
		state      *domain.StudentState
		shouldStop bool
		reason     domain.StopReason
	}{
		{
			name:  "no facts, no stop",
			state: &domain.StudentState{},
		},
		{
			name:       "case closed",
			state:      &domain.StudentState{CaseStatus: strPtr(CaseStatusClosed)},
			shouldStop: true,
			reason:     domain.StopReasonCaseClosed,
		},
		{
			name:  "case open is not a stop",
			state: &domain.StudentState{CaseStatus: strPtr("open")},
		},
		{
			name:       "guardian replied after trigger",
			state:      &domain.StudentState{LastGuardianReplyAt: timePtr(afterTrigger)},
			shouldStop: true,
			reason:     domain.StopReasonGuardianReplied,
		},
		{
			name:  "guardian reply before trigger does not count",
			state: &domain.StudentState{LastGuardianReplyAt: timePtr(beforeTrigger)},
		},
		{
			name:       "attendance at threshold",
			state:      &domain.StudentState{AttendanceRate: floatPtr(90.0)},
			shouldStop: true,
			reason:     domain.StopReasonAttendanceImproved,
		},
		{
			name:  "attendance below threshold",
			state: &domain.StudentState{AttendanceRate: floatPtr(89.9)},
		},
		{
			name: "case closed wins over guardian reply",
			state: &domain.StudentState{
				CaseStatus:          strPtr(CaseStatusClosed),
				LastGuardianReplyAt: timePtr(afterTrigger),
				AttendanceRate:      floatPtr(95.0),
			},
			shouldStop: true,
			reason:     domain.StopReasonCaseClosed,
		},
		{
			name: "guardian reply wins over attendance",
			state: &domain.StudentState{
				LastGuardianReplyAt: timePtr(afterTrigger),
				AttendanceRate:      floatPtr(95.0),
			},
			shouldStop: true,
			reason:     domain.StopReasonGuardianReplied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := evaluator.EvaluateStop(activeRun(triggeredAt), tt.state)

			assert.Equal(t, tt.shouldStop, verdict.ShouldStop)
			if tt.shouldStop {
				assert.Equal(t, tt.reason, verdict.Reason)
			}
		})
	}
}

func TestEvaluator_ShouldEscalate(t *testing.T) {
	evaluator := NewEvaluator()
	triggeredAt := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	definition := &domain.Definition{EscalationAfterDays: 7}

	tests := []struct {
		name     string
		mutate   func(run *domain.Run, def *domain.Definition)
		now      time.Time
		expected bool
	}{
		{
			name:     "escalates once threshold elapsed and run progressed",
			mutate:   func(run *domain.Run, def *domain.Definition) { run.CurrentStep = 1 },
			now:      triggeredAt.AddDate(0, 0, 7),
			expected: true,
		},
		{
			name:     "threshold not yet elapsed",
			mutate:   func(run *domain.Run, def *domain.Definition) { run.CurrentStep = 1 },
			now:      triggeredAt.AddDate(0, 0, 6),
			expected: false,
		},
		{
			name:     "no progress yet",
			mutate:   func(run *domain.Run, def *domain.Definition) { run.CurrentStep = 0 },
			now:      triggeredAt.AddDate(0, 0, 10),
			expected: false,
		},
		{
			name: "escalation disabled",
			mutate: func(run *domain.Run, def *domain.Definition) {
				run.CurrentStep = 1
				def.EscalationAfterDays = 0
			},
			now:      triggeredAt.AddDate(0, 0, 10),
			expected: false,
		},
		{
			name: "stopped run never escalates",
			mutate: func(run *domain.Run, def *domain.Definition) {
				run.CurrentStep = 1
				run.Status = domain.RunStatusStopped
			},
			now:      triggeredAt.AddDate(0, 0, 10),
			expected: false,
		},
		{
			name: "already escalated",
			mutate: func(run *domain.Run, def *domain.Definition) {
				run.CurrentStep = 1
				run.EscalatedAt = timePtr(triggeredAt.AddDate(0, 0, 7))
			},
			now:      triggeredAt.AddDate(0, 0, 10),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := activeRun(triggeredAt)
			def := *definition
			tt.mutate(run, &def)

			assert.Equal(t, tt.expected, evaluator.ShouldEscalate(run, &def, tt.now))
		})
	}
}
