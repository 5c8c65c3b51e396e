package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeadLetterItem is the terminal record of a permanently failed OutboxItem.
// It is created only by the dispatch loop once the item's attempts are
// exhausted, and mutated only by an explicit manual replay.
type DeadLetterItem struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	OutboxItemID uuid.UUID
	ItemType     string
	Payload      string
	Reason       string
	FailedAt     time.Time
	ReplayedAt   *time.Time
	ReplayedBy   *string
}
