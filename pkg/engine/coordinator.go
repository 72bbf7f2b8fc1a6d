// Package engine drives executions through their workflow graphs: the
// coordinator runs an execution until it suspends or ends, and the scheduler
// resumes suspended executions once they are due.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/graph"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes"
	"github.com/dukex/leadflow/pkg/otelhelper"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartRequest starts one execution of a published workflow for one subject.
type StartRequest struct {
	WorkflowID  string         `json:"workflow_id"  validate:"required"`
	SubjectID   string         `json:"subject_id"   validate:"required"`
	ChannelID   string         `json:"channel_id"`
	ContextData map[string]any `json:"context_data"`
}

// Coordinator owns every state change of an execution after its creation.
type Coordinator struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	executor   *nodes.Executor
	publisher  eventbus.EventPublisher
	clock      clockwork.Clock
	tracer     trace.Tracer
	validate   *validator.Validate
	config     Config
	logger     *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for due times and claim leases. The node
// executor should share it.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithTracer sets the tracer used for run spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

// WithPublisher publishes lifecycle events. Publishing is best effort.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(c *Coordinator) {
		c.publisher = publisher
	}
}

// WithConfig overrides DefaultConfig. Zero fields keep their defaults.
func WithConfig(config Config) Option {
	return func(c *Coordinator) {
		c.config = config.withDefaults()
	}
}

func NewCoordinator(p persistence.Persistence, executor *nodes.Executor, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		workflows:  p.WorkflowRepository(),
		executions: p.ExecutionRepository(),
		executor:   executor,
		clock:      clockwork.NewRealClock(),
		tracer:     otelhelper.NoopTracer(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		config:     DefaultConfig(),
		logger:     logger.With("module", "execution_coordinator"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.config
}

// StartExecution creates an execution at the trigger node of a published
// workflow and runs it until it suspends or ends. The returned execution
// reflects the last persisted state, also when an error is returned.
func (c *Coordinator) StartExecution(ctx context.Context, req StartRequest) (*models.Execution, error) {
	err := c.validate.Struct(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStartRequest, err)
	}

	definition, err := c.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", req.WorkflowID, err)
	}

	if !definition.IsPublished() {
		return nil, fmt.Errorf("%w: %s is %s", ErrWorkflowNotPublished, definition.ID, definition.Status)
	}

	g, err := graph.Compile(definition)
	if err != nil {
		return nil, fmt.Errorf("workflow %s cannot be executed: %w", definition.ID, err)
	}

	now := c.clock.Now().UTC()
	expiresAt := now.Add(c.config.ClaimTTL)

	contextData := make(map[string]any, len(req.ContextData))
	maps.Copy(contextData, req.ContextData)

	execution := &models.Execution{
		ID:             uuid.NewString(),
		WorkflowID:     definition.ID,
		TenantID:       definition.TenantID,
		SubjectID:      req.SubjectID,
		ChannelID:      req.ChannelID,
		CurrentNodeID:  g.Trigger().ID,
		Status:         models.ExecutionStatusRunning,
		ContextData:    contextData,
		ClaimToken:     uuid.NewString(),
		ClaimExpiresAt: &expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = c.executions.Create(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	c.logger.InfoContext(ctx, "Execution started",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"subject_id", execution.SubjectID,
	)
	c.publish(ctx, events.ExecutionStartedEvent, execution)

	err = c.run(ctx, g, execution)

	return execution, err
}

// RunUntilSuspended executes nodes of a claimed execution until a wait node
// suspends it or it reaches a terminal status. Terminal executions are left
// untouched. On return, execution holds the last persisted state.
func (c *Coordinator) RunUntilSuspended(ctx context.Context, execution *models.Execution) error {
	if execution.Status.IsTerminal() {
		return nil
	}

	if execution.Status != models.ExecutionStatusRunning || execution.ClaimToken == "" {
		return fmt.Errorf("%w: %s", ErrNotClaimed, execution.ID)
	}

	definition, err := c.workflows.GetByID(ctx, execution.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return c.fail(ctx, execution, err)
		}

		// Nothing is written: the claim lease expires and the execution is retried.
		return fmt.Errorf("failed to load workflow %s: %w", execution.WorkflowID, err)
	}

	g, err := graph.Compile(definition)
	if err != nil {
		return c.fail(ctx, execution, err)
	}

	return c.run(ctx, g, execution)
}

// Execution returns one execution.
func (c *Coordinator) Execution(ctx context.Context, id string) (*models.Execution, error) {
	return c.executions.GetByID(ctx, id)
}

// ExecutionsByWorkflow returns the executions of a workflow, newest first.
func (c *Coordinator) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return c.executions.ListByWorkflow(ctx, workflowID)
}

// ExecutionsBySubject returns the executions of a subject, newest first.
func (c *Coordinator) ExecutionsBySubject(ctx context.Context, subjectID string) ([]*models.Execution, error) {
	return c.executions.ListBySubject(ctx, subjectID)
}

func (c *Coordinator) run(ctx context.Context, g *graph.Graph, execution *models.Execution) error {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "execution.run",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.WorkflowNameKey, g.Definition().Name),
		attribute.String(otelhelper.TenantIDKey, execution.TenantID),
		attribute.String(otelhelper.SubjectIDKey, execution.SubjectID),
		attribute.String(otelhelper.WorkerIDKey, c.config.WorkerID),
	)
	defer span.End()

	logger := c.logger.With(
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"subject_id", execution.SubjectID,
	)
	ctx = log.WithLogger(ctx, logger)

	err := c.loop(ctx, logger, g, execution)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	span.SetAttributes(
		attribute.String(otelhelper.ExecutionStatusKey, string(execution.Status)),
		attribute.Int(otelhelper.StepCountKey, execution.Steps),
	)

	return err
}

func (c *Coordinator) loop(ctx context.Context, logger *slog.Logger, g *graph.Graph, execution *models.Execution) error {
	token := execution.ClaimToken

	for steps := 0; ; steps++ {
		if steps >= c.config.MaxStepsPerRun {
			logger.ErrorContext(ctx, "Execution exceeded the step limit", "limit", c.config.MaxStepsPerRun)

			return c.fail(ctx, execution, ErrStepLimitExceeded)
		}

		node, ok := g.Node(execution.CurrentNodeID)
		if !ok {
			logger.InfoContext(ctx, "Current node not found, completing execution", "node_id", execution.CurrentNodeID)

			return c.terminate(ctx, execution, token, models.ExecutionStatusCompleted, false)
		}

		stepCtx, cancel, err := c.leaseContext(ctx, execution)
		if err != nil {
			logger.WarnContext(ctx, "Claim lease expired before the step, leaving the execution to its next claimant",
				"node_id", node.ID,
			)

			return err
		}

		step := c.executor.Execute(stepCtx, g, node, execution)
		cancel()

		switch step.Kind {
		case nodes.StepAdvance:
			next := execution.Clone()
			now := c.clock.Now().UTC()
			expiresAt := now.Add(c.config.ClaimTTL)
			next.CurrentNodeID = step.NextNodeID
			next.ClaimExpiresAt = &expiresAt
			next.UpdatedAt = now
			next.Steps++

			err := c.save(ctx, execution, next, token)
			if err != nil {
				return err
			}
		case nodes.StepSuspend:
			next := execution.Clone()
			resumeAt := step.ResumeAt.UTC()
			next.CurrentNodeID = step.NextNodeID
			next.Status = models.ExecutionStatusPending
			next.ScheduledFor = &resumeAt
			next.ClaimToken = ""
			next.ClaimExpiresAt = nil
			next.UpdatedAt = c.clock.Now().UTC()
			next.Steps++

			err := c.save(ctx, execution, next, token)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Execution suspended", "resume_at", resumeAt, "next_node_id", next.CurrentNodeID)
			c.publish(ctx, events.ExecutionSuspendedEvent, execution)

			return nil
		default:
			return c.terminate(ctx, execution, token, step.Status, true)
		}
	}
}

// leaseContext bounds one step by the remaining claim lease so that collaborator
// calls give up before another worker may reclaim the execution.
func (c *Coordinator) leaseContext(ctx context.Context, execution *models.Execution) (context.Context, context.CancelFunc, error) {
	if execution.ClaimExpiresAt == nil {
		return ctx, func() {}, nil
	}

	remaining := execution.ClaimExpiresAt.Sub(c.clock.Now())
	if remaining <= 0 {
		return nil, nil, fmt.Errorf("%w: lease of execution %s expired at %s",
			persistence.ErrClaimLost, execution.ID, execution.ClaimExpiresAt.UTC())
	}

	stepCtx, cancel := context.WithTimeout(ctx, remaining)

	return stepCtx, cancel, nil
}

func (c *Coordinator) terminate(
	ctx context.Context,
	execution *models.Execution,
	token string,
	status models.ExecutionStatus,
	countStep bool,
) error {
	now := c.clock.Now().UTC()

	next := execution.Clone()
	next.Status = status
	next.ScheduledFor = nil
	next.ClaimToken = ""
	next.ClaimExpiresAt = nil
	next.UpdatedAt = now
	next.CompletedAt = &now

	if countStep {
		next.Steps++
	}

	err := c.save(ctx, execution, next, token)
	if err != nil {
		return err
	}

	log.FromContext(ctx, c.logger).InfoContext(ctx, "Execution finished", "status", status, "steps", execution.Steps)
	c.publish(ctx, events.LifecycleEventFor(status), execution)

	return nil
}

// save persists next and, only once the write succeeded, copies it into execution.
func (c *Coordinator) save(ctx context.Context, execution, next *models.Execution, token string) error {
	err := c.executions.Save(ctx, next, token)
	if err == nil {
		*execution = *next

		return nil
	}

	if persistence.IsClaimLost(err) {
		log.FromContext(ctx, c.logger).WarnContext(ctx, "Claim lost, another worker owns the execution",
			"execution_id", execution.ID,
		)

		return fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
	}

	return c.fail(ctx, execution, fmt.Errorf("failed to save execution %s: %w", execution.ID, err))
}

// fail marks the execution failed when the row can still be written and
// returns cause. When that write fails too, the row stays at its last
// persisted node and is retried after the claim lease expires.
func (c *Coordinator) fail(ctx context.Context, execution *models.Execution, cause error) error {
	logger := log.FromContext(ctx, c.logger)
	now := c.clock.Now().UTC()

	err := c.executions.Fail(ctx, execution.ID, execution.ClaimToken, cause.Error(), now)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to mark execution as failed",
			"execution_id", execution.ID,
			"cause", cause,
			"error", err,
		)

		return errors.Join(cause, err)
	}

	execution.Status = models.ExecutionStatusFailed
	execution.Error = cause.Error()
	execution.ScheduledFor = nil
	execution.ClaimToken = ""
	execution.ClaimExpiresAt = nil
	execution.UpdatedAt = now
	execution.CompletedAt = &now

	logger.ErrorContext(ctx, "Execution failed", "execution_id", execution.ID, "error", cause)
	c.publish(ctx, events.ExecutionFailedEvent, execution)

	return cause
}

func (c *Coordinator) publish(ctx context.Context, eventType events.EventType, execution *models.Execution) {
	if c.publisher == nil {
		return
	}

	err := c.publisher.Publish(ctx, execution.ID, events.NewExecutionLifecycle(eventType, execution, c.config.WorkerID))
	if err != nil {
		log.FromContext(ctx, c.logger).WarnContext(ctx, "Failed to publish lifecycle event",
			"event_type", eventType,
			"execution_id", execution.ID,
			"error", err,
		)
	}
}
