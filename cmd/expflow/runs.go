package main

import (
	"context"
	"fmt"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/expflow/expflow/pkg/client"
)

func runCommands() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect and control workflow runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the run history of an experiment",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "experiment", Aliases: []string{"e"}, Required: true},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					runs, err := apiClient(command).ListRuns(reqCtx, command.String("experiment"))
					if err != nil {
						return err
					}

					return printJSON(runs)
				},
			},
			{
				Name:      "get",
				Usage:     "Show a run with its jobs",
				ArgsUsage: "<run-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					run, err := apiClient(command).GetRun(reqCtx, command.Args().First())
					if err != nil {
						return err
					}

					return printJSON(run)
				},
			},
			{
				Name:      "cancel",
				Usage:     "Request cancellation of a run",
				ArgsUsage: "<run-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					return apiClient(command).CancelRun(reqCtx, command.Args().First())
				},
			},
			{
				Name:  "watch",
				Usage: "Poll the run history until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "experiment", Aliases: []string{"e"}, Required: true},
					&cli.DurationFlag{Name: "interval", Value: client.DefaultPollInterval},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					tracker := client.NewRunTracker(apiClient(command),
						command.String("experiment"),
						client.WithPollInterval(command.Duration("interval")))

					tracker.Start(ctx)
					defer tracker.Wait()

					ticker := time.NewTicker(command.Duration("interval"))
					defer ticker.Stop()

					for {
						select {
						case <-ctx.Done():
							return nil
						case <-ticker.C:
							if err := tracker.Err(); err != nil {
								fmt.Println("poll failed:", err)

								continue
							}

							selected := tracker.Selected()
							if selected == nil {
								fmt.Println("no runs")

								continue
							}

							fmt.Printf("%s  %s  jobs=%d\n", selected.ID, selected.Status, len(selected.Jobs))
						}
					}
				},
			},
		},
	}
}
