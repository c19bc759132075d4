package main

import (
	"context"
	"os"
	"strconv"

	cli "github.com/urfave/cli/v3"

	"github.com/weftworks/weft/pkg/cmd"
	"github.com/weftworks/weft/pkg/log"
	"github.com/weftworks/weft/pkg/otelhelper"
	"github.com/weftworks/weft/pkg/web"
)

func main() {
	app := &cli.Command{
		Name:                  "weft-api",
		EnableShellCompletion: true,
		Usage:                 "Start the workflow management API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to start the API server on",
				Value:   9091,
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

	logger := log.WithModule("weft-api")
	logger.InfoContext(ctx, "Initializing Weft API server")

	tracerProvider, err := otelhelper.NewTracerProvider(ctx, "weft-api")
	if err != nil {
		return err
	}

	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to shut down tracer provider", "error", err)
		}
	}()

	registry, _, err := cmd.NewRegistry(logger)
	if err != nil {
		return err
	}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger, "weft-api")
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

	app := web.NewApp(logger, store, registry, eventBus)

	port := command.Int("port")
	logger.InfoContext(ctx, "Starting API server", "port", port)

	return app.Listen(":" + strconv.Itoa(int(port)))
}
