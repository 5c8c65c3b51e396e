// Package domain contains the playbook catalog and run entities.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Step is one timed outreach step inside a playbook. Offsets are expressed in
// days from the previous step (from the trigger for the first step).
type Step struct {
	ID              uuid.UUID
	DefinitionID    uuid.UUID
	Position        int
	OffsetDays      int
	Channel         string
	TemplateRef     string
	FallbackChannel *string
	SkipIfReplied   bool
}

// Definition is an immutable-per-version catalog entry: the trigger it reacts
// to, its ordered steps, and its escalation policy. Steps are always loaded
// sorted by position.
type Definition struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	Name                string
	TriggerStage        string
	EscalationAfterDays int
	Active              bool
	Steps               []Step
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// FirstStep returns the first step, or nil for an empty definition.
func (d *Definition) FirstStep() *Step {
	if len(d.Steps) == 0 {
		return nil
	}
	return &d.Steps[0]
}
