package main

import (
	"context"

	"github.com/cmsflow/approvals/pkg/cmd"
	"github.com/cmsflow/approvals/pkg/log"
	"github.com/cmsflow/approvals/pkg/services"
	"github.com/urfave/cli/v3"
)

func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Aliases:   []string{"i"},
		Usage:     "Load workflow definition files",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			databaseURLFlag(),
			&cli.StringFlag{
				Name:    "definitions-path",
				Usage:   "Workflow definition file or directory",
				Sources: cli.EnvVars("DEFINITIONS_PATH"),
			},
			logLevelFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("import")

			path := command.String("definitions-path")
			if command.Args().Present() {
				path = command.Args().First()
			}

			if path == "" {
				return cli.Exit("a definitions path is required", 2)
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			return importDefinitions(ctx, logger, services.NewWorkflow(persistence), path)
		},
	}
}
