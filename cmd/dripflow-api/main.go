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

const defaultPort = 9090

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "dripflow-api",
		Usage:                 "Serve the automation trigger, tracking, and workflow API",
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
			&cli.StringFlag{
				Name:    "trigger-token",
				Usage:   "Bearer token required by the trigger endpoint; empty disables the check",
				Value:   "",
				Sources: cli.EnvVars("TRIGGER_TOKEN"),
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

			logger.InfoContext(ctx, "Initializing Dripflow API")

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
			}

			tracer := noop.NewTracerProvider().Tracer("dripflow-api")

			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "dripflow-api")
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

			api := NewAPI(
				logger,
				persistence,
				scheduler,
				command.String("trigger-token"),
			)

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
