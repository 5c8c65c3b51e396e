// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/schoolops/internal/errors"
)

var (
	// idempotencyKeyRegex constrains keys to the colon-separated token shape used
	// by all producers (e.g. "playbook:{run}:{step}:{guardian}").
	idempotencyKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9._\-]+(:[a-zA-Z0-9._\-]+)*$`)

	// itemTypeRegex constrains outbox item types to dotted lowercase names
	// (e.g. "message.send", "case.escalate").
	itemTypeRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// patternRule matches a string against a regexp. Unlike NewStringRule it does
// not skip empty values, so an empty string fails the pattern instead of
// passing silently.
type patternRule struct {
	pattern *regexp.Regexp
	code    string
	message string
}

// Validate checks that the value is a string matching the pattern.
func (r patternRule) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError(r.code, r.message)
	}
	if !r.pattern.MatchString(s) {
		return validation.NewError(r.code, r.message)
	}
	return nil
}

// IdempotencyKey validates the shape of an outbox idempotency key.
var IdempotencyKey = patternRule{
	pattern: idempotencyKeyRegex,
	code:    "validation_idempotency_key",
	message: "must be a colon-separated key of alphanumeric tokens",
}

// ItemType validates the shape of an outbox item type discriminator.
var ItemType = patternRule{
	pattern: itemTypeRegex,
	code:    "validation_item_type",
	message: "must be a dotted lowercase type name",
}

// NonNilUUID rejects the zero UUID. validation.Required cannot catch it: a
// uuid.UUID is a [16]byte array, and an array is never empty.
type NonNilUUID struct{}

// Validate checks that the value is a non-nil UUID.
func (NonNilUUID) Validate(value interface{}) error {
	id, ok := value.(uuid.UUID)
	if !ok {
		return validation.NewError("validation_uuid", "must be a UUID")
	}
	if id == uuid.Nil {
		return validation.NewError("validation_uuid", "must be a non-nil UUID")
	}
	return nil
}

// Channel validates an outreach channel name.
type Channel struct{}

// Validate checks that the value is one of the supported channels.
func (Channel) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_channel", "channel must be a string")
	}
	switch s {
	case "sms", "email", "whatsapp":
		return nil
	}
	return validation.NewError("validation_channel", "channel must be one of sms, email, whatsapp")
}
