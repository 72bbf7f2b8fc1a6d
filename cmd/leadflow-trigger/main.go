package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/leadflow/pkg/cmd"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/triggers"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9092

func main() {
	logger := log.WithModule("leadflow-trigger")

	command := &cli.Command{
		Name:                  "leadflow-trigger",
		Usage:                 "Start workflows from lead stage changes and purchases",
		EnableShellCompletion: true,
		Flags: append(append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port of the webhook receiver, 0 disables it",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "webhook-token",
				Usage:   "Shared secret expected in the X-Leadflow-Token header",
				Sources: cli.EnvVars("WEBHOOK_TOKEN"),
			},
		}, cmd.CommonFlags()...), cmd.EngineFlags()...),
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List the triggers of published workflows",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "tenant-id",
						Usage: "Only list workflows of this tenant",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"), command.String("log-format"))

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

					return listTriggers(ctx, os.Stdout, p.WorkflowRepository(), command.String("tenant-id"))
				},
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger.InfoContext(ctx, "Initializing Leadflow trigger service")

			runtime, err := cmd.NewRuntime(ctx, command, "leadflow-trigger", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := runtime.Close(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dispatcher := triggers.NewDispatcher(runtime.Persistence, runtime.Coordinator, logger)
			manager := NewTriggerManager(dispatcher, runtime.EventBus, command.String("webhook-token"), command.Int("port"), logger)

			err = manager.Start(ctx)
			if err != nil {
				return err
			}

			<-ctx.Done()

			return manager.Stop(context.Background())
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("Leadflow trigger service failed", "error", err)
		os.Exit(1)
	}
}
