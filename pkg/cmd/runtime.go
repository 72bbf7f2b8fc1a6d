package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/leadflow/pkg/conditions"
	"github.com/dukex/leadflow/pkg/engine"
	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/nodes"
	"github.com/dukex/leadflow/pkg/persistence"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// Runtime holds what a long running binary opens at startup.
type Runtime struct {
	Persistence persistence.Persistence
	EventBus    *eventbus.WatermillEventBus
	Tracer      trace.Tracer
	Coordinator *engine.Coordinator
	Scheduler   *engine.Scheduler

	shutdownTracer func(context.Context) error
}

// NewRuntime opens persistence, the event bus and the tracer, and wires the
// coordinator to them. It reads CommonFlags and EngineFlags from command.
func NewRuntime(ctx context.Context, command *cli.Command, serviceName string, logger *slog.Logger) (*Runtime, error) {
	engineConfig := EngineConfig(command)
	collaboratorConfig := WebhookConfig(command)

	err := CheckClaimTTL(engineConfig, collaboratorConfig)
	if err != nil {
		return nil, err
	}

	p, err := NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, fmt.Errorf("failed to open persistence: %w", err)
	}

	bus, err := NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		_ = p.Close(ctx)

		return nil, err
	}

	tracer, shutdown, err := NewTracer(ctx, command.Bool("tracing"), serviceName, logger)
	if err != nil {
		_ = bus.Close(ctx)
		_ = p.Close(ctx)

		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	collaborators := NewCollaborators(collaboratorConfig, logger)
	evaluator := conditions.NewEvaluator(collaborators.TextGenerator, logger,
		conditions.WithRecencyThreshold(command.Duration("recency-threshold")),
	)
	executor := nodes.NewExecutor(collaborators, logger, nodes.WithEvaluator(evaluator), nodes.WithTracer(tracer))

	coordinator := engine.NewCoordinator(p, executor, logger,
		engine.WithConfig(engineConfig),
		engine.WithPublisher(bus),
		engine.WithTracer(tracer),
	)

	return &Runtime{
		Persistence:    p,
		EventBus:       bus,
		Tracer:         tracer,
		Coordinator:    coordinator,
		Scheduler:      engine.NewScheduler(coordinator, logger),
		shutdownTracer: shutdown,
	}, nil
}

// Close releases everything NewRuntime opened.
func (r *Runtime) Close(ctx context.Context) error {
	return errors.Join(
		r.EventBus.Close(ctx),
		r.Persistence.Close(ctx),
		r.shutdownTracer(ctx),
	)
}
