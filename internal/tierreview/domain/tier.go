// Package domain contains the attendance tier model.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier is an attendance support band.
type Tier string

// Tiers, best to worst.
const (
	TierUniversal Tier = "universal"
	TierTwo       Tier = "tier2"
	TierThree     Tier = "tier3"
	TierFour      Tier = "tier4"
)

// TierForRate bands an attendance rate (percent) into a tier.
func TierForRate(rate float64) Tier {
	switch {
	case rate >= 95:
		return TierUniversal
	case rate >= 90:
		return TierTwo
	case rate >= 80:
		return TierThree
	default:
		return TierFour
	}
}

// TierAssignment is a student's current tier. One row per student, replaced
// when the band changes.
type TierAssignment struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	StudentID  uuid.UUID
	Tier       Tier
	WeekStart  time.Time
	AssignedAt time.Time
}

// StudentRate is one row of the latest-attendance read model.
type StudentRate struct {
	TenantID  uuid.UUID
	StudentID uuid.UUID
	Rate      float64
}

// WeekStart truncates an instant to the Monday of its week, UTC midnight.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

// ReviewIdempotencyKey builds the outbox key for one tier change in one week.
func ReviewIdempotencyKey(studentID uuid.UUID, tier Tier, weekStart time.Time) string {
	return fmt.Sprintf("tier-review:%s:%s:%s", studentID, tier, weekStart.Format("2006-01-02"))
}
