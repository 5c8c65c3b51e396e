// Package domain contains the channel-send request carried by message.send
// outbox items.
package domain

import (
	"encoding/json"

	"github.com/google/uuid"

	apperrors "github.com/allisson/schoolops/internal/errors"
)

// ItemTypeSendMessage is the outbox item type handled by the messaging
// subsystem.
const ItemTypeSendMessage = "message.send"

// Message channels.
const (
	ChannelSMS      = "sms"
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// SendRequest is the payload of a message.send outbox item: who to reach, on
// which channel, with which template. Tenant is explicit so the handler never
// depends on ambient state.
type SendRequest struct {
	TenantID     uuid.UUID         `json:"tenant_id"`
	GuardianID   uuid.UUID         `json:"guardian_id"`
	Channel      string            `json:"channel"`
	TemplateRef  string            `json:"template_ref"`
	TemplateData map[string]string `json:"template_data,omitempty"`
}

// Encode serializes the request for an outbox payload.
func (r SendRequest) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to encode send request")
	}
	return string(data), nil
}

// DecodeSendRequest deserializes an outbox payload. A malformed payload is a
// handler failure and counts toward the item's attempt budget.
func DecodeSendRequest(payload string) (*SendRequest, error) {
	var request SendRequest
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode send request")
	}
	if request.TenantID == uuid.Nil || request.GuardianID == uuid.Nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "send request missing tenant or guardian")
	}
	return &request, nil
}
