package main

import (
	"context"
	"os"

	"github.com/dripflow/dripflow/pkg/cmd"
	"github.com/dripflow/dripflow/pkg/log"
	"github.com/dripflow/dripflow/pkg/mailer"
	"github.com/dripflow/dripflow/pkg/otelhelper"
	"github.com/dripflow/dripflow/pkg/runner"
	"github.com/dripflow/dripflow/pkg/secrets"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace/noop"
)

func main() {
	command := &cli.Command{
		Name:                  "dripflow-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Poll due workflow runs and advance them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel); empty disables events",
				Value:   "",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "encryption-key",
				Usage:    "Passphrase used to decrypt stored SMTP credentials",
				Required: true,
				Sources:  cli.EnvVars("ENCRYPTION_KEY"),
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Public base URL used for open and click tracking links",
				Value:   "http://localhost:9090",
				Sources: cli.EnvVars("BASE_URL"),
			},
			&cli.IntFlag{
				Name:    "batch-limit",
				Usage:   "Maximum number of due runs fetched per tick",
				Value:   runner.DefaultBatchLimit,
				Sources: cli.EnvVars("BATCH_LIMIT"),
			},
			&cli.StringFlag{
				Name:    "tick",
				Usage:   "Cron expression for the polling tick",
				Value:   "* * * * *",
				Sources: cli.EnvVars("SCHEDULER_TICK"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the tick lock; empty runs without a lock",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "once",
				Usage:   "Process a single batch and exit",
				Sources: cli.EnvVars("RUN_ONCE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			logger := log.WithModule("dripflow-scheduler")

			logger.InfoContext(ctx, "Initializing Dripflow Scheduler")

			cipher, err := secrets.NewCipher(command.String("encryption-key"))
			if err != nil {
				return err
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			if eventBus != nil {
				defer func() {
					err := eventBus.Close()
					if err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()

				err = watchRunEvents(ctx, eventBus, logger)
				if err != nil {
					return err
				}
			}

			tracer := noop.NewTracerProvider().Tracer("dripflow-scheduler")

			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "dripflow-scheduler")
				if err != nil {
					return err
				}
			}

			pool := mailer.NewTransportPool()
			defer func() {
				err := pool.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close transport pool", "error", err)
				}
			}()

			adapter := mailer.NewAdapter(persistence, pool, cipher, command.String("base-url"), logger)
			executor := runner.NewExecutor(persistence, adapter, eventBus, logger)
			scheduler := runner.NewScheduler(persistence, executor, tracer, logger)

			daemon, err := NewDaemon(
				scheduler,
				logger,
				command.String("tick"),
				command.String("redis-url"),
				command.Int("batch-limit"),
			)
			if err != nil {
				return err
			}

			if command.Bool("once") {
				return daemon.RunOnce(ctx)
			}

			return daemon.Start(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
