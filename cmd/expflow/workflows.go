package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/expflow/expflow/pkg/models"
)

func workflowCommands() *cli.Command {
	return &cli.Command{
		Name:    "workflows",
		Aliases: []string{"wf"},
		Usage:   "Manage workflow graphs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List workflows of an experiment",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "experiment", Aliases: []string{"e"}, Required: true},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					workflows, err := apiClient(command).ListWorkflows(reqCtx, command.String("experiment"))
					if err != nil {
						return err
					}

					return printJSON(workflows)
				},
			},
			{
				Name:  "create",
				Usage: "Create an empty workflow",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true},
					&cli.StringFlag{Name: "experiment", Aliases: []string{"e"}, Required: true},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					workflow, err := apiClient(command).CreateWorkflow(reqCtx,
						command.String("name"), command.String("experiment"))
					if err != nil {
						return err
					}

					return printJSON(workflow)
				},
			},
			{
				Name:      "get",
				Usage:     "Show a workflow graph",
				ArgsUsage: "<workflow-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					workflow, err := apiClient(command).GetWorkflow(reqCtx, command.Args().First())
					if err != nil {
						return err
					}

					return printJSON(workflow)
				},
			},
			{
				Name:      "add-node",
				Usage:     "Add a node to a workflow graph",
				ArgsUsage: "<workflow-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true},
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Required: true,
						Usage: "TRAIN, EVAL, DOWNLOAD_MODEL or OTHER"},
					&cli.StringFlag{Name: "template", Usage: "template reference for TRAIN/EVAL nodes"},
					&cli.StringFlag{Name: "model", Usage: "model identifier for DOWNLOAD_MODEL nodes"},
					&cli.StringFlag{Name: "doc", Usage: "JSON document file for OTHER nodes"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					workflowID := command.Args().First()
					name := command.String("name")

					var (
						node *models.Node
						err  error
					)

					switch typ := models.NodeType(command.String("type")); typ {
					case models.NodeTypeOther:
						var doc []byte

						if path := command.String("doc"); path != "" {
							doc, err = os.ReadFile(path)
							if err != nil {
								return err
							}
						}

						node, err = apiClient(command).AddOtherNode(reqCtx, workflowID, name, doc)
					case models.NodeTypeDownloadModel:
						node, err = apiClient(command).AddNode(reqCtx, workflowID, name, typ,
							map[string]any{"model": command.String("model")})
					default:
						node, err = apiClient(command).AddNode(reqCtx, workflowID, name, typ,
							map[string]any{"template": command.String("template")})
					}

					if err != nil {
						return err
					}

					return printJSON(node)
				},
			},
			{
				Name:      "export",
				Usage:     "Print the portable YAML document of a workflow",
				ArgsUsage: "<workflow-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					doc, err := apiClient(command).ExportWorkflow(reqCtx, command.Args().First())
					if err != nil {
						return err
					}

					fmt.Print(string(doc))

					return nil
				},
			},
			{
				Name:      "import",
				Usage:     "Create a workflow from a YAML document file",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "experiment", Aliases: []string{"e"}, Required: true},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					data, err := os.ReadFile(command.Args().First())
					if err != nil {
						return err
					}

					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					workflow, err := apiClient(command).ImportWorkflow(reqCtx,
						command.String("experiment"), data)
					if err != nil {
						return err
					}

					return printJSON(workflow)
				},
			},
			{
				Name:      "start",
				Usage:     "Start a workflow run",
				ArgsUsage: "<workflow-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					runID, err := apiClient(command).StartWorkflow(reqCtx, command.Args().First())
					if err != nil {
						return err
					}

					fmt.Println(runID)

					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a workflow",
				ArgsUsage: "<workflow-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					reqCtx, cancel := requestContext(ctx)
					defer cancel()

					return apiClient(command).DeleteWorkflow(reqCtx, command.Args().First())
				},
			},
		},
	}
}
