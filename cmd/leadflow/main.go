// Package main provides the leadflow command line tool for workflow definition files.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/dukex/leadflow/pkg/cmd"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

var ErrNothingToValidate = errors.New("pass definition files or --database-url")

func databaseURLFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "database-url",
		Usage:    "Database connection URL for persistence",
		Required: required,
		Sources:  cli.EnvVars("DATABASE_URL"),
	}
}

func main() {
	logger := log.WithModule("leadflow")

	command := &cli.Command{
		Name:                  "leadflow",
		Usage:                 "Validate, import and export lead automation workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log output format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Aliases:   []string{"v"},
				Usage:     "Validate definition files, or the published workflows of a database",
				ArgsUsage: "[file.json|file.yaml ...]",
				Flags: []cli.Flag{
					databaseURLFlag(false),
					&cli.StringFlag{Name: "tenant-id", Usage: "Only validate workflows of this tenant"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					if command.Args().Len() > 0 {
						return validateFiles(os.Stdout, command.Args().Slice())
					}

					if command.String("database-url") == "" {
						return ErrNothingToValidate
					}

					p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
					if err != nil {
						return err
					}

					defer func() {
						err := p.Close(ctx)
						if err != nil {
							logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
						}
					}()

					return validateStored(ctx, os.Stdout, services.NewWorkflow(p, logger), command.String("tenant-id"))
				},
			},
			{
				Name:      "import",
				Aliases:   []string{"i"},
				Usage:     "Create workflows from definition files",
				ArgsUsage: "file.json|file.yaml ...",
				Flags: []cli.Flag{
					databaseURLFlag(true),
					&cli.StringFlag{Name: "tenant-id", Usage: "Override the tenant of every imported workflow"},
					&cli.BoolFlag{Name: "publish", Usage: "Publish each workflow after creating it"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
					if err != nil {
						return err
					}

					defer func() {
						err := p.Close(ctx)
						if err != nil {
							logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
						}
					}()

					return importFiles(ctx, os.Stdout,
						services.NewWorkflow(p, logger),
						services.NewPublishing(p, logger),
						command.Args().Slice(),
						command.String("tenant-id"),
						command.Bool("publish"),
					)
				},
			},
			{
				Name:      "export",
				Aliases:   []string{"e"},
				Usage:     "Print a stored workflow as JSON or YAML",
				ArgsUsage: "workflow-id",
				Flags: []cli.Flag{
					databaseURLFlag(true),
					&cli.StringFlag{Name: "format", Usage: "Output format (json, yaml)", Value: formatYAML},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
					if err != nil {
						return err
					}

					defer func() {
						err := p.Close(ctx)
						if err != nil {
							logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
						}
					}()

					definition, err := services.NewWorkflow(p, logger).FetchByID(ctx, command.Args().First())
					if err != nil {
						return err
					}

					return encodeDefinition(os.Stdout, definition, command.String("format"))
				},
			},
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("leadflow failed", "error", err)
		os.Exit(1)
	}
}
