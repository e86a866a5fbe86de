package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cmsflow/approvals/pkg/cmd"
	"github.com/cmsflow/approvals/pkg/definitions"
	"github.com/cmsflow/approvals/pkg/log"
	"github.com/cmsflow/approvals/pkg/otelhelper"
	"github.com/cmsflow/approvals/pkg/services"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = 9091

func databaseURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "database-url",
		Usage:    "Database connection URL (postgres://... or file://<dir>)",
		Required: true,
		Sources:  cli.EnvVars("DATABASE_URL"),
	}
}

func logLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Value:   "info",
		Sources: cli.EnvVars("LOG_LEVEL"),
	}
}

func eventBusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka, none)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka broker addresses",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
	}
}

func RunAPICommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		databaseURLFlag(),
		&cli.StringFlag{
			Name:    "user-directory",
			Usage:   "User directory (sql or static:id=Name,...)",
			Value:   "static",
			Sources: cli.EnvVars("USER_DIRECTORY"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL caching user display names",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "definitions-path",
			Usage:   "Workflow definition file or directory imported on startup",
			Sources: cli.EnvVars("DEFINITIONS_PATH"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		logLevelFlag(),
	}

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start api",
		Flags:   append(flags, eventBusFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing approvals API")

			tracer, shutdown, err := setupTracing(ctx, command.Bool("otel-enabled"))
			if err != nil {
				return err
			}

			defer func() {
				if err := shutdown(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to shut down tracer provider", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
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

			db, _ := cmd.SQLDB(persistence)

			directory, closeUsers, err := cmd.NewUserDirectory(ctx, command.String("user-directory"), db, command.String("redis-url"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := closeUsers(); err != nil {
					logger.ErrorContext(ctx, "Failed to close user cache", "error", err)
				}
			}()

			if path := command.String("definitions-path"); path != "" {
				err = importDefinitions(ctx, logger, services.NewWorkflow(persistence), path)
				if err != nil {
					return err
				}
			}

			api := NewAPI(logger, persistence, directory, eventBus, tracer)

			err = api.Start(ctx, command.Int("port"))
			if err != nil {
				return fmt.Errorf("failed to start api: %w", err)
			}

			return nil
		},
	}
}

// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func setupTracing(ctx context.Context, enabled bool) (trace.Tracer, otelhelper.ShutdownFunc, error) {
	if !enabled {
		return nil, func(context.Context) error { return nil }, nil
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, "approvals-api")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	return tracer, shutdown, nil
}

func importDefinitions(ctx context.Context, logger *slog.Logger, workflows *services.Workflow, path string) error {
	result, err := definitions.NewImporter(workflows, logger).LoadAndImport(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to import definitions: %w", err)
	}

	logger.InfoContext(ctx, "Imported workflow definitions",
		"path", path,
		"created", result.Created,
		"updated", result.Updated)

	return nil
}
