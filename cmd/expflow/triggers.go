package main

import (
	"context"

	cli "github.com/urfave/cli/v3"

	"github.com/expflow/expflow/pkg/client"
)

func triggerCommands() *cli.Command {
	return &cli.Command{
		Name:  "triggers",
		Usage: "Manage workflow triggers",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List triggers of an experiment",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "experiment", Aliases: []string{"e"}, Required: true},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					triggers, err := apiClient(command).ListTriggers(reqCtx, command.String("experiment"))
					if err != nil {
						return err
					}

					return printJSON(triggers)
				},
			},
			{
				Name:      "get",
				Usage:     "Show a trigger",
				ArgsUsage: "<trigger-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					trigger, err := apiClient(command).GetTrigger(reqCtx, command.Args().First())
					if err != nil {
						return err
					}

					return printJSON(trigger)
				},
			},
			{
				Name:      "enable",
				Usage:     "Enable a trigger",
				ArgsUsage: "<trigger-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					return toggleTrigger(ctx, command, true)
				},
			},
			{
				Name:      "disable",
				Usage:     "Disable a trigger",
				ArgsUsage: "<trigger-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					return toggleTrigger(ctx, command, false)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a trigger",
				ArgsUsage: "<trigger-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					return apiClient(command).DeleteTrigger(reqCtx, command.Args().First())
				},
			},
		},
	}
}

func toggleTrigger(ctx context.Context, command *cli.Command, enabled bool) error {
	reqCtx, cancel := requestContext(ctx)
	defer cancel()

	trigger, err := apiClient(command).UpdateTrigger(reqCtx, command.Args().First(),
		client.TriggerUpdate{IsEnabled: &enabled})
	if err != nil {
		return err
	}

	return printJSON(trigger)
}
