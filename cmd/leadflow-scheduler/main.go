package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/leadflow/pkg/cmd"
	"github.com/dukex/leadflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := log.WithModule("leadflow-scheduler")

	command := &cli.Command{
		Name:                  "leadflow-scheduler",
		Usage:                 "Resume suspended executions once their wait is over",
		EnableShellCompletion: true,
		Flags: append(append([]cli.Flag{
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression or @every descriptor driving the ticks",
				Value:   "@every 30s",
				Sources: cli.EnvVars("SCHEDULER_SPEC"),
			},
		}, cmd.CommonFlags()...), cmd.EngineFlags()...),
		Commands: []*cli.Command{
			{
				Name:  "tick",
				Usage: "Run one scheduler pass and print its result",
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"), command.String("log-format"))

					runtime, err := cmd.NewRuntime(ctx, command, "leadflow-scheduler", logger)
					if err != nil {
						return err
					}

					defer func() {
						err := runtime.Close(ctx)
						if err != nil {
							logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
						}
					}()

					result, err := runtime.Scheduler.Tick(ctx)
					if err != nil {
						return err
					}

					encoder := json.NewEncoder(os.Stdout)
					encoder.SetIndent("", "  ")

					return encoder.Encode(result)
				},
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger.InfoContext(ctx, "Initializing Leadflow scheduler")

			runtime, err := cmd.NewRuntime(ctx, command, "leadflow-scheduler", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := runtime.Close(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			manager, err := NewSchedulerManager(runtime.Scheduler, command.String("schedule"), logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = manager.Start(ctx)
			if err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("Shutting down scheduler...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return manager.Stop(shutdownCtx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("Leadflow scheduler failed", "error", err)
		os.Exit(1)
	}
}
