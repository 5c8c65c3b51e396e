// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/schoolops/cmd/app/commands"
	"github.com/allisson/schoolops/internal/config"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "schoolops",
		Usage:   "School operations background execution platform",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "worker",
				Usage: "Start the background worker (dispatcher, periodic jobs and ops server)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunWorker(ctx, version)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg := config.Load()
					logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
					return commands.RunMigrations(logger, cfg.DBDriver, cfg.DBConnectionString)
				},
			},
			{
				Name:  "list-dead-letters",
				Usage: "List dead-lettered outbox items",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "offset",
						Aliases: []string{"o"},
						Value:   0,
						Usage:   "Number of dead letters to skip",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Value:   50,
						Usage:   "Maximum number of dead letters to show",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunListDeadLetters(
						ctx,
						int(cmd.Int("offset")),
						int(cmd.Int("limit")),
						cmd.String("format"),
					)
				},
			},
			{
				Name:  "replay-dead-letter",
				Usage: "Reset a dead-lettered item back to pending",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "Dead letter ID (UUID)",
					},
					&cli.StringFlag{
						Name:     "replayed-by",
						Aliases:  []string{"b"},
						Required: true,
						Usage:    "Operator identifier recorded on the dead letter",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunReplayDeadLetter(
						ctx,
						cmd.String("id"),
						cmd.String("replayed-by"),
					)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
