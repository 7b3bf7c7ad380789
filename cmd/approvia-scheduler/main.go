// Package main provides the Approvia scheduler service, which fires due
// compound journal definitions and runs approval-triggered definitions.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/ledgerops/approvia/pkg/cmd"
	"github.com/ledgerops/approvia/pkg/log"
)

func main() {
	logger := log.WithModule("scheduler")

	command := &cli.Command{
		Name:                  "approvia-scheduler",
		Usage:                 "Fire due compound journal definitions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "poll-cron",
				Usage:   "Cron expression controlling the scheduler poll cadence",
				Value:   "* * * * *",
				Sources: cli.EnvVars("POLL_CRON"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			schedule, err := cron.ParseStandard(command.String("poll-cron"))
			if err != nil {
				return fmt.Errorf("invalid poll cron expression: %w", err)
			}

			logger.InfoContext(ctx, "Initializing Approvia scheduler",
				"poll_cron", command.String("poll-cron"))

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "approvia-scheduler", logger)
			if err != nil {
				return err
			}

			if eventBus != nil {
				defer func() {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()
			}

			daemon := NewDaemon(persistence, eventBus, schedule, logger)

			return daemon.Run(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
