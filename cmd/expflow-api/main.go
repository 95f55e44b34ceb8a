package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/expflow/expflow/pkg/cmd"
	"github.com/expflow/expflow/pkg/log"
	"github.com/expflow/expflow/pkg/otelhelper"
)

const defaultPort = 9191

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "expflow-api",
		Usage:                 "Workflow, run and trigger API server",
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
				Usage:    "Database connection URL (file path or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringSliceFlag{
				Name:    "templates",
				Usage:   "Training/eval template names TRAIN and EVAL nodes may reference",
				Value:   []string{"lora-default", "mmlu-lite"},
				Sources: cli.EnvVars("EXPFLOW_TEMPLATES"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export run execution spans via OTLP",
				Sources: cli.EnvVars("EXPFLOW_TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing expflow API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			api := NewAPI(logger, persistence)
			api.templates = command.StringSlice("templates")

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "expflow-api")
				if err != nil {
					return err
				}

				api.tracer = tracer
			}

			return api.Start(ctx, command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
