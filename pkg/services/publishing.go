package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/graph"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/jonboulle/clockwork"
)

// Publishing moves workflows in and out of the published state. Only published
// workflows start executions.
type Publishing struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewPublishing creates a new workflow publishing service.
func NewPublishing(persistence persistence.Persistence, logger *slog.Logger, opts ...Option) *Publishing {
	o := buildOptions(opts)

	return &Publishing{
		persistence: persistence,
		publisher:   o.publisher,
		clock:       o.clock,
		logger:      logger.With("module", "publishing_service"),
	}
}

// PublishWorkflow compiles the workflow graph and marks it published.
// Publishing an already published workflow returns it unchanged.
func (p *Publishing) PublishWorkflow(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	definition, err := p.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if definition.IsPublished() {
		return definition, nil
	}

	compiled, err := graph.Compile(definition)
	if err != nil {
		return nil, NewValidationError(
			"PublishWorkflow",
			"INVALID_DEFINITION",
			err.Error(),
			fmt.Errorf("%w: %w", ErrInvalidDefinition, err),
		)
	}

	logger := p.logger.With("workflow_id", workflowID, "tenant_id", definition.TenantID)

	if unreachable := compiled.Unreachable(); len(unreachable) > 0 {
		logger.WarnContext(ctx, "Workflow has unreachable nodes", "nodes", unreachable)
	}

	now := p.clock.Now().UTC()
	definition.Status = models.WorkflowStatusPublished
	definition.PublishedAt = &now
	definition.UpdatedAt = now

	err = p.persistence.WorkflowRepository().Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to publish workflow: %w", err)
	}

	logger.InfoContext(ctx, "Workflow published")

	event := events.WorkflowPublished{BaseEvent: events.NewBaseEvent(events.WorkflowPublishedEvent, workflowID), Name: definition.Name}
	event.TenantID = definition.TenantID
	p.publish(ctx, logger, workflowID, event)

	return definition, nil
}

// UnpublishWorkflow stops a published workflow from starting new executions.
// Executions already in flight keep running.
func (p *Publishing) UnpublishWorkflow(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	definition, err := p.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !definition.IsPublished() {
		return nil, ErrWorkflowNotPublished
	}

	definition.Status = models.WorkflowStatusUnpublished
	definition.UpdatedAt = p.clock.Now().UTC()

	err = p.persistence.WorkflowRepository().Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to unpublish workflow: %w", err)
	}

	logger := p.logger.With("workflow_id", workflowID, "tenant_id", definition.TenantID)
	logger.InfoContext(ctx, "Workflow unpublished")

	event := events.WorkflowUnpublished{BaseEvent: events.NewBaseEvent(events.WorkflowUnpublishedEvent, workflowID), Name: definition.Name}
	event.TenantID = definition.TenantID
	p.publish(ctx, logger, workflowID, event)

	return definition, nil
}

func (p *Publishing) publish(ctx context.Context, logger *slog.Logger, key string, event eventbus.Event) {
	if p.publisher == nil {
		return
	}

	err := p.publisher.Publish(ctx, key, event)
	if err != nil {
		logger.WarnContext(ctx, "Failed to publish workflow event", "event_type", event.GetType(), "error", err)
	}
}
