package cmd

import (
	"time"

	"github.com/dukex/leadflow/pkg/collaborators/webhook"
	"github.com/dukex/leadflow/pkg/conditions"
	"github.com/dukex/leadflow/pkg/engine"
	cli "github.com/urfave/cli/v3"
)

// CommonFlags are shared by every long running binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file path, postgres:// or redis://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log output format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// EngineFlags configure the coordinator and its collaborators.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "messenger-url",
			Usage:   "Endpoint receiving outbound messages",
			Sources: cli.EnvVars("MESSENGER_URL"),
		},
		&cli.StringFlag{
			Name:    "text-generator-url",
			Usage:   "Endpoint completing prompts for generated messages and natural-language rules",
			Sources: cli.EnvVars("TEXT_GENERATOR_URL"),
		},
		&cli.StringFlag{
			Name:    "automation-url",
			Usage:   "Endpoint disabling automation for a lead",
			Sources: cli.EnvVars("AUTOMATION_URL"),
		},
		&cli.StringFlag{
			Name:    "subjects-url",
			Usage:   "Base URL resolving leads by id",
			Sources: cli.EnvVars("SUBJECTS_URL"),
		},
		&cli.StringFlag{
			Name:    "collaborator-token",
			Usage:   "Bearer token sent to collaborator endpoints",
			Sources: cli.EnvVars("COLLABORATOR_TOKEN"),
		},
		&cli.DurationFlag{
			Name:    "collaborator-timeout",
			Usage:   "Timeout of one collaborator call",
			Value:   webhook.DefaultTimeout,
			Sources: cli.EnvVars("COLLABORATOR_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "collaborator-retries",
			Usage:   "Attempts per collaborator call",
			Value:   3,
			Sources: cli.EnvVars("COLLABORATOR_RETRIES"),
		},
		&cli.IntFlag{
			Name:    "max-steps",
			Usage:   "Maximum nodes executed in one run",
			Value:   engine.DefaultMaxStepsPerRun,
			Sources: cli.EnvVars("MAX_STEPS_PER_RUN"),
		},
		&cli.DurationFlag{
			Name:    "claim-ttl",
			Usage:   "How long a worker holds an execution",
			Value:   engine.DefaultClaimTTL,
			Sources: cli.EnvVars("CLAIM_TTL"),
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "Maximum due executions resumed per tick",
			Value:   engine.DefaultBatchSize,
			Sources: cli.EnvVars("BATCH_SIZE"),
		},
		&cli.StringFlag{
			Name:    "worker-id",
			Usage:   "Identifier of this worker in events and traces",
			Value:   "leadflow",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.DurationFlag{
			Name:    "recency-threshold",
			Usage:   "How recent a reply must be for repliedRecently conditions",
			Value:   conditions.DefaultRecencyThreshold,
			Sources: cli.EnvVars("RECENCY_THRESHOLD"),
		},
	}
}

// WebhookConfig reads the collaborator endpoints from command.
func WebhookConfig(command *cli.Command) webhook.Config {
	headers := map[string]string{}
	if token := command.String("collaborator-token"); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	return webhook.Config{
		MessengerURL:     command.String("messenger-url"),
		TextGeneratorURL: command.String("text-generator-url"),
		AutomationURL:    command.String("automation-url"),
		SubjectsURL:      command.String("subjects-url"),
		Headers:          headers,
		Timeout:          command.Duration("collaborator-timeout"),
		Retries: webhook.RetryConfig{
			Attempts: command.Int("collaborator-retries"),
			Delay:    time.Second,
		},
	}
}

// EngineConfig reads the coordinator tunables from command.
func EngineConfig(command *cli.Command) engine.Config {
	return engine.Config{
		MaxStepsPerRun: command.Int("max-steps"),
		ClaimTTL:       command.Duration("claim-ttl"),
		BatchSize:      command.Int("batch-size"),
		WorkerID:       command.String("worker-id"),
	}
}
