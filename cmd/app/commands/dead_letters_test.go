package commands

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	outboxDomain "github.com/allisson/schoolops/internal/outbox/domain"
)

// MockDeadLetterReplayer is a mock implementation of deadLetterReplayer.
type MockDeadLetterReplayer struct {
	mock.Mock
}

func (m *MockDeadLetterReplayer) ListDeadLetters(ctx context.Context, offset, limit int) ([]*outboxDomain.DeadLetterItem, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outboxDomain.DeadLetterItem), args.Error(1)
}

func (m *MockDeadLetterReplayer) Replay(ctx context.Context, deadLetterID uuid.UUID, replayedBy string) error {
	args := m.Called(ctx, deadLetterID, replayedBy)
	return args.Error(0)
}

func TestListDeadLetters(t *testing.T) {
	ctx := context.Background()

	t.Run("text-output", func(t *testing.T) {
		mockReplayer := &MockDeadLetterReplayer{}
		items := []*outboxDomain.DeadLetterItem{
			{
				ID:       uuid.Must(uuid.NewV7()),
				TenantID: uuid.Must(uuid.NewV7()),
				ItemType: "message.send",
				Reason:   "exhausted 5 attempts: provider timeout",
				FailedAt: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
			},
		}
		mockReplayer.On("ListDeadLetters", ctx, 0, 50).Return(items, nil)

		var out bytes.Buffer
		err := listDeadLetters(ctx, mockReplayer, &out, 0, 50, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "message.send")
		require.Contains(t, out.String(), "Total: 1 dead letter(s)")
		mockReplayer.AssertExpectations(t)
	})

	t.Run("json-output", func(t *testing.T) {
		mockReplayer := &MockDeadLetterReplayer{}
		mockReplayer.On("ListDeadLetters", ctx, 0, 50).
			Return([]*outboxDomain.DeadLetterItem{}, nil)

		var out bytes.Buffer
		err := listDeadLetters(ctx, mockReplayer, &out, 0, 50, "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), "[]")
	})

	t.Run("empty-text-output", func(t *testing.T) {
		mockReplayer := &MockDeadLetterReplayer{}
		mockReplayer.On("ListDeadLetters", ctx, 0, 50).
			Return([]*outboxDomain.DeadLetterItem{}, nil)

		var out bytes.Buffer
		err := listDeadLetters(ctx, mockReplayer, &out, 0, 50, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "No dead letters found")
	})

	t.Run("invalid-limit", func(t *testing.T) {
		mockReplayer := &MockDeadLetterReplayer{}

		err := listDeadLetters(ctx, mockReplayer, &bytes.Buffer{}, 0, 0, "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "limit must be a positive number")
	})
}

func TestReplayDeadLetter(t *testing.T) {
	ctx := context.Background()

	t.Run("replays", func(t *testing.T) {
		mockReplayer := &MockDeadLetterReplayer{}
		deadLetterID := uuid.Must(uuid.NewV7())
		mockReplayer.On("Replay", ctx, deadLetterID, "ops@example.com").Return(nil)

		var out bytes.Buffer
		err := replayDeadLetter(ctx, mockReplayer, &out, deadLetterID.String(), "ops@example.com")

		require.NoError(t, err)
		require.Contains(t, out.String(), "replayed")
		mockReplayer.AssertExpectations(t)
	})

	t.Run("invalid-id", func(t *testing.T) {
		mockReplayer := &MockDeadLetterReplayer{}

		err := replayDeadLetter(ctx, mockReplayer, &bytes.Buffer{}, "not-a-uuid", "ops@example.com")

		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid dead letter id")
	})

	t.Run("missing-replayed-by", func(t *testing.T) {
		mockReplayer := &MockDeadLetterReplayer{}

		err := replayDeadLetter(ctx, mockReplayer, &bytes.Buffer{}, uuid.Must(uuid.NewV7()).String(), "")

		require.Error(t, err)
		require.Contains(t, err.Error(), "replayed-by is required")
		mockReplayer.AssertNotCalled(t, "Replay", mock.Anything, mock.Anything, mock.Anything)
	})
}
