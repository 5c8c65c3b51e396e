// Package domain contains the outreach campaign entity.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the campaign lifecycle state. A campaign is only ever
// picked up while SCHEDULED; once past that it is never reprocessed.
type CampaignStatus string

// Campaign statuses.
const (
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// Campaign is one scheduled broadcast to the guardians of an audience stage.
type Campaign struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Name          string
	AudienceStage string
	Channel       string
	TemplateRef   string
	ScheduledAt   time.Time
	Status        CampaignStatus
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GuardianIdempotencyKey builds the outbox key for one guardian's campaign
// message. Rerunning a campaign's send fan-out collapses onto the same items.
func GuardianIdempotencyKey(campaignID, guardianID uuid.UUID) string {
	return fmt.Sprintf("campaign:%s:%s", campaignID, guardianID)
}
