package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/weftworks/weft/pkg/cmd"
	"github.com/weftworks/weft/pkg/log"
	"github.com/weftworks/weft/pkg/otelhelper"
)

func main() {
	app := &cli.Command{
		Name:                  "weft-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker that executes workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus transport (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	logger := log.WithModule("weft-worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing Weft worker")

	tracerProvider, err := otelhelper.NewTracerProvider(ctx, "weft-worker")
	if err != nil {
		return err
	}

	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to shut down tracer provider", "error", err)
		}
	}()

	registry, converter, err := cmd.NewRegistry(logger)
	if err != nil {
		return err
	}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger, "weft-worker")
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	worker := NewWorkerManager(workerID, store, eventBus, logger, registry, converter)

	return worker.Start(ctx)
}
