package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/recforge/recforge/pkg/cmd"
	"github.com/recforge/recforge/pkg/log"
	"github.com/recforge/recforge/pkg/otelhelper"
	"github.com/recforge/recforge/pkg/personalize"
	"github.com/recforge/recforge/pkg/personalize/fake"
	"github.com/recforge/recforge/pkg/pipeline"
	cli "github.com/urfave/cli/v3"
)

const defaultConcurrency = 10

func main() {
	logger := log.WithModule("runner")

	command := &cli.Command{
		Name:                  "recforge-runner",
		Usage:                 "Resume due pipeline executions and publish outcomes",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:    "provisioner-role-arn",
				Usage:   "Role passed to import and batch jobs",
				Sources: cli.EnvVars("PROVISIONER_ROLE_ARN"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Maximum executions resumed in parallel",
				Value:   defaultConcurrency,
				Sources: cli.EnvVars("CONCURRENCY"),
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

			logger.InfoContext(ctx, "Initializing recforge runner")

			tracer, err := otelhelper.NewTracer(ctx, "recforge-runner")
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

			eventBus := cmd.NewEventBus(command.String("event-bus"), "recforge-runner", logger)
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

			client := fake.NewClient()
			cfg := personalize.Config{RoleARN: command.String("provisioner-role-arn")}

			engine := pipeline.NewEngine(pipeline.Config{
				Catalog: pipeline.Catalog(),
				Families: map[string]pipeline.Family{
					pipeline.FamilyProvision: {
						Steps:  personalize.Steps(client, cfg),
						Poller: personalize.NewProvisionPoller(client),
					},
					pipeline.FamilyCleanup: {
						Steps:  personalize.CleanupSteps(client),
						Poller: personalize.NewCleanupPoller(client),
					},
				},
				Repo:   persist.Executions(),
				Bus:    eventBus,
				Queue:  queue,
				Tracer: tracer,
				Logger: logger,
			})

			runner := NewRunner(engine, persist.Executions(), queue, logger, command.Int("concurrency"))

			err = runner.Start(ctx)
			if err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			logger.InfoContext(ctx, "Shutting down runner")
			runner.Stop()

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
