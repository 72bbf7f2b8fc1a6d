// Package nodes executes single workflow nodes and reports the resulting step.
package nodes

import (
	"context"
	"log/slog"

	"github.com/dukex/leadflow/pkg/conditions"
	"github.com/dukex/leadflow/pkg/graph"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/otelhelper"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Executor dispatches a node by its type. It never returns an error: side-effect
// failures are logged and traversal continues.
type Executor struct {
	messenger protocol.Messenger
	generator protocol.TextGenerator
	disabler  protocol.AutomationDisabler
	subjects  protocol.SubjectDirectory
	evaluator *conditions.Evaluator
	clock     clockwork.Clock
	tracer    trace.Tracer
	logger    *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the clock used for wait due times and recency checks.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Executor) {
		e.clock = clock
	}
}

// WithEvaluator replaces the default condition evaluator.
func WithEvaluator(evaluator *conditions.Evaluator) Option {
	return func(e *Executor) {
		e.evaluator = evaluator
	}
}

// WithTracer sets the tracer used for node spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// NewExecutor creates an executor backed by the given collaborators.
func NewExecutor(collaborators protocol.Collaborators, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		messenger: collaborators.Messenger,
		generator: collaborators.TextGenerator,
		disabler:  collaborators.Disabler,
		subjects:  collaborators.Subjects,
		clock:     clockwork.NewRealClock(),
		tracer:    otelhelper.NoopTracer(),
		logger:    logger.With("module", "node_executor"),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.evaluator == nil {
		e.evaluator = conditions.NewEvaluator(collaborators.TextGenerator, logger, conditions.WithClock(e.clock))
	}

	return e
}

// Execute runs node for execution and returns what the coordinator should do next.
func (e *Executor) Execute(ctx context.Context, g *graph.Graph, node *models.Node, execution *models.Execution) Step {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "node.execute",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	logger := log.FromContext(ctx, e.logger).With("node_id", node.ID, "node_type", node.Type)

	var step Step

	switch cfg := node.Config.(type) {
	case *models.TriggerConfig:
		step = e.advance(g, node.ID)
	case *models.MessageConfig:
		step = e.message(ctx, logger, g, node, cfg, execution)
	case *models.WaitConfig:
		step = e.wait(g, node, cfg)
	case *models.SmartConditionConfig:
		step = e.condition(ctx, g, node, cfg, execution)
	case *models.StopAutomationConfig:
		step = e.stop(ctx, logger, cfg, execution)
	case *models.UnknownConfig:
		logger.WarnContext(ctx, "Skipping node of unknown type")

		step = e.advance(g, node.ID)
	default:
		logger.WarnContext(ctx, "Skipping node without configuration")

		step = e.advance(g, node.ID)
	}

	span.SetAttributes(attribute.String("leadflow.step.kind", step.Kind.String()))

	return step
}

// advance follows the unlabeled edge, completing the execution at a dead end.
func (e *Executor) advance(g *graph.Graph, nodeID string) Step {
	next := g.Next(nodeID, "")
	if next == "" {
		return Complete()
	}

	return Advance(next)
}

// subject resolves the execution's subject; a lookup failure yields nil.
func (e *Executor) subject(ctx context.Context, execution *models.Execution) *models.Subject {
	if e.subjects == nil {
		return nil
	}

	subject, err := e.subjects.Subject(ctx, execution.SubjectID)
	if err != nil {
		log.FromContext(ctx, e.logger).WarnContext(ctx, "Failed to resolve subject",
			"subject_id", execution.SubjectID,
			"error", err,
		)

		return nil
	}

	return subject
}
