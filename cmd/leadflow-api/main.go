package main

import (
	"context"
	"os"

	"github.com/dukex/leadflow/pkg/cmd"
	"github.com/dukex/leadflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "leadflow-api",
		Usage:                 "Create, publish and test lead automation workflows",
		EnableShellCompletion: true,
		Flags: append(append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}, cmd.CommonFlags()...), cmd.EngineFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger.InfoContext(ctx, "Initializing Leadflow API")

			runtime, err := cmd.NewRuntime(ctx, command, "leadflow-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := runtime.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			api := NewAPI(logger, runtime.Persistence, runtime.EventBus, runtime.Coordinator, runtime.Scheduler)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "API server stopped", "error", err)
			}

			return err
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("Leadflow API failed", "error", err)
		os.Exit(1)
	}
}
