// Package usecase implements the playbook orchestration loop and its pure
// stop/escalation evaluator.
package usecase

import (
	"time"

	"github.com/allisson/schoolops/internal/playbook/domain"
)

// CaseStatusClosed is the case status that stops a run.
const CaseStatusClosed = "closed"

// AttendanceStopThreshold is the attendance rate (percent) at or above which
// a run stops as improved.
const AttendanceStopThreshold = 90.0

// StopVerdict is the outcome of a stop evaluation.
type StopVerdict struct {
	ShouldStop bool
	Reason     domain.StopReason
}

// Evaluator decides whether an active run should stop or escalate. It is
// pure: all state is passed in, nothing is read or written.
type Evaluator struct{}

// NewEvaluator creates a new Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// EvaluateStop checks stop conditions in fixed precedence order, first match
// wins: case closed, then guardian replied after the trigger, then attendance
// at or above the threshold.
func (e *Evaluator) EvaluateStop(run *domain.Run, state *domain.StudentState) StopVerdict {
	if state.CaseStatus != nil && *state.CaseStatus == CaseStatusClosed {
		return StopVerdict{ShouldStop: true, Reason: domain.StopReasonCaseClosed}
	}

	if state.LastGuardianReplyAt != nil && state.LastGuardianReplyAt.After(run.TriggeredAt) {
		return StopVerdict{ShouldStop: true, Reason: domain.StopReasonGuardianReplied}
	}

	if state.AttendanceRate != nil && *state.AttendanceRate >= AttendanceStopThreshold {
		return StopVerdict{ShouldStop: true, Reason: domain.StopReasonAttendanceImproved}
	}

	return StopVerdict{}
}

// ShouldEscalate reports whether the run is overdue for escalation: the
// definition opts in, the configured number of days has elapsed since the
// trigger, the run has progressed at least one step, it is still active, and
// it has not already escalated.
func (e *Evaluator) ShouldEscalate(run *domain.Run, definition *domain.Definition, now time.Time) bool {
	if definition.EscalationAfterDays <= 0 {
		return false
	}
	if run.Status != domain.RunStatusActive {
		return false
	}
	if run.CurrentStep < 1 {
		return false
	}
	if run.EscalatedAt != nil {
		return false
	}
	threshold := time.Duration(definition.EscalationAfterDays) * 24 * time.Hour
	return now.Sub(run.TriggeredAt) >= threshold
}
