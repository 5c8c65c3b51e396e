package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/allisson/schoolops/internal/app"
	"github.com/allisson/schoolops/internal/config"
	outboxDomain "github.com/allisson/schoolops/internal/outbox/domain"
)

// deadLetterReplayer is the slice of the replay use case the CLI needs.
type deadLetterReplayer interface {
	ListDeadLetters(ctx context.Context, offset, limit int) ([]*outboxDomain.DeadLetterItem, error)
	Replay(ctx context.Context, deadLetterID uuid.UUID, replayedBy string) error
}

// RunListDeadLetters prints dead-lettered outbox items for operator inspection.
// Supports text and JSON output formats.
func RunListDeadLetters(ctx context.Context, offset, limit int, format string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	replayUseCase, err := container.ReplayUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize replay use case: %w", err)
	}

	return listDeadLetters(ctx, replayUseCase, os.Stdout, offset, limit, format)
}

// RunReplayDeadLetter resets the outbox item behind a dead letter back to
// pending so the dispatcher picks it up again.
func RunReplayDeadLetter(ctx context.Context, id, replayedBy string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	replayUseCase, err := container.ReplayUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize replay use case: %w", err)
	}

	if err := replayDeadLetter(ctx, replayUseCase, os.Stdout, id, replayedBy); err != nil {
		return err
	}

	logger.Info("dead letter replayed",
		slog.String("id", id),
		slog.String("replayed_by", replayedBy),
	)
	return nil
}

func listDeadLetters(ctx context.Context, replayer deadLetterReplayer, out io.Writer, offset, limit int, format string) error {
	if limit < 1 {
		return fmt.Errorf("limit must be a positive number, got: %d", limit)
	}

	items, err := replayer.ListDeadLetters(ctx, offset, limit)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	if format == "json" {
		jsonBytes, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(jsonBytes))
		return nil
	}

	if len(items) == 0 {
		fmt.Fprintln(out, "No dead letters found")
		return nil
	}

	for _, item := range items {
		replayed := "no"
		if item.ReplayedAt != nil {
			replayed = item.ReplayedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "%s  tenant=%s  type=%s  failed_at=%s  replayed=%s\n  reason: %s\n",
			item.ID,
			item.TenantID,
			item.ItemType,
			item.FailedAt.Format("2006-01-02 15:04:05"),
			replayed,
			item.Reason,
		)
	}
	fmt.Fprintf(out, "Total: %d dead letter(s)\n", len(items))
	return nil
}

func replayDeadLetter(ctx context.Context, replayer deadLetterReplayer, out io.Writer, id, replayedBy string) error {
	deadLetterID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid dead letter id: %w", err)
	}

	if replayedBy == "" {
		return fmt.Errorf("replayed-by is required")
	}

	if err := replayer.Replay(ctx, deadLetterID, replayedBy); err != nil {
		return fmt.Errorf("failed to replay dead letter: %w", err)
	}

	fmt.Fprintf(out, "Dead letter %s replayed, item is pending again\n", deadLetterID)
	return nil
}
