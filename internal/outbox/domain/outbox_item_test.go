package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 32 * time.Second},
		{6, 32 * time.Second},
		{100, 32 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, BackoffDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffDelay_Monotonic(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt <= 10; attempt++ {
		delay := BackoffDelay(attempt)
		assert.GreaterOrEqual(t, delay, prev, "attempt %d", attempt)
		prev = delay
	}
}

func TestBackoffDelay_NegativeAttempt(t *testing.T) {
	assert.Equal(t, 1*time.Second, BackoffDelay(-1))
}
