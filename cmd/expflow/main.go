// Package main provides the expflow operator CLI: a thin client over the
// workflow API for scripting and debugging.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/expflow/expflow/pkg/client"
)

func main() {
	command := &cli.Command{
		Name:                  "expflow",
		Usage:                 "Manage workflows, runs and triggers",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Base URL of the expflow API",
				Value:   "http://localhost:9191",
				Sources: cli.EnvVars("EXPFLOW_SERVER"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "Per-request timeout",
				Value:   client.DefaultTimeout,
				Sources: cli.EnvVars("EXPFLOW_TIMEOUT"),
			},
		},
		Commands: []*cli.Command{
			workflowCommands(),
			runCommands(),
			jobCommands(),
			triggerCommands(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func apiClient(command *cli.Command) *client.Client {
	return client.New(command.String("server"),
		client.WithTimeout(command.Duration("timeout")))
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))

	return nil
}

func requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Minute)
}
