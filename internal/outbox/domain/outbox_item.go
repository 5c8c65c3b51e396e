// Package domain defines the core outbox domain entities and types.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxItemStatus represents the status of an outbox item.
type OutboxItemStatus string

const (
	OutboxItemStatusPending    OutboxItemStatus = "pending"
	OutboxItemStatusProcessing OutboxItemStatus = "processing"
	OutboxItemStatusCompleted  OutboxItemStatus = "completed"
	OutboxItemStatusFailed     OutboxItemStatus = "failed"
)

// DefaultMaxAttempts is the number of handler attempts before an item is dead-lettered.
const DefaultMaxAttempts = 5

// backoffExponentCap bounds the exponential backoff growth (2^5 = 32 time units).
const backoffExponentCap = 5

// OutboxItem represents one unit of asynchronous work in the transactional
// outbox. (TenantID, IdempotencyKey) is unique: a second enqueue with the same
// key for the same tenant is a silent no-op.
type OutboxItem struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ScopeID        *uuid.UUID
	ItemType       string
	Payload        string
	IdempotencyKey string
	Status         OutboxItemStatus
	Attempts       int
	NextAttemptAt  time.Time
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BackoffDelay returns the retry delay scheduled after the given attempt:
// 2^min(attempt,5) seconds. The delay is non-decreasing in the attempt count.
func BackoffDelay(attempt int) time.Duration {
	exp := attempt
	if exp > backoffExponentCap {
		exp = backoffExponentCap
	}
	if exp < 0 {
		exp = 0
	}
	return time.Duration(1<<uint(exp)) * time.Second
}
