package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"
)

func jobCommands() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect individual jobs",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Show a job's detail, including parsed scores",
				ArgsUsage: "<job-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					detail, err := apiClient(command).GetJob(reqCtx, command.Args().First())
					if err != nil {
						return err
					}

					if err := printJSON(detail); err != nil {
						return err
					}

					return printJSON(detail.JobData.Scores())
				},
			},
			{
				Name:      "logs",
				Usage:     "Stream a job's output until the job finishes",
				ArgsUsage: "<job-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					lines, err := apiClient(command).StreamJobOutput(ctx, command.Args().First())
					if err != nil {
						return err
					}

					for line := range lines {
						fmt.Println(line)
					}

					return nil
				},
			},
		},
	}
}
