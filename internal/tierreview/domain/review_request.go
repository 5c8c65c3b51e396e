package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/schoolops/internal/errors"
)

// ItemTypeTierReview is the outbox item type for tier review tasks.
const ItemTypeTierReview = "tier.review"

// ReviewRequest is the payload of a tier.review outbox item.
type ReviewRequest struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	StudentID uuid.UUID `json:"student_id"`
	Tier      Tier      `json:"tier"`
	WeekStart time.Time `json:"week_start"`
}

// Encode serializes the request for an outbox payload.
func (r ReviewRequest) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to encode review request")
	}
	return string(data), nil
}

// DecodeReviewRequest deserializes an outbox payload.
func DecodeReviewRequest(payload string) (*ReviewRequest, error) {
	var request ReviewRequest
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode review request")
	}
	if request.TenantID == uuid.Nil || request.StudentID == uuid.Nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "review request missing tenant or student")
	}
	return &request, nil
}

// ReviewTask is the durable work item the review handler produces for staff.
type ReviewTask struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	StudentID uuid.UUID
	Tier      Tier
	WeekStart time.Time
	CreatedAt time.Time
}
