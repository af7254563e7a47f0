package main

import (
	"context"
	"os"

	"github.com/recforge/recforge/pkg/cmd"
	"github.com/recforge/recforge/pkg/log"
	"github.com/recforge/recforge/pkg/otelhelper"
	"github.com/recforge/recforge/pkg/pipeline"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "recforge-api",
		Usage:                 "Trigger and inspect recommendation pipelines",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the wakeup queue (empty for in-process)",
				Sources: cli.EnvVars("REDIS_URL"),
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

			logger.InfoContext(ctx, "Initializing recforge API")

			tracer, err := otelhelper.NewTracer(ctx, "recforge-api")
			if err != nil {
				return err
			}

			persist := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persist.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "recforge-api", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			queue := cmd.NewWakeupQueue(ctx, command.String("redis-url"))
			defer func() {
				if err := queue.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close wakeup queue", "error", err)
				}
			}()

			// The API only starts and cancels executions; the runner owns
			// the resume loop, so no provisioning client is wired here.
			engine := pipeline.NewEngine(pipeline.Config{
				Catalog:  pipeline.Catalog(),
				Families: map[string]pipeline.Family{},
				Repo:     persist.Executions(),
				Bus:      eventBus,
				Queue:    queue,
				Tracer:   tracer,
				Logger:   logger,
			})

			api := NewAPI(logger, persist, engine)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
