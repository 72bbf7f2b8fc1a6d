// Package triggers turns lead activity into executions of the published
// workflows whose trigger node matches it.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/dukex/leadflow/pkg/engine"
	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

var ErrUnexpectedEvent = errors.New("unexpected event payload")

// Starter starts executions. *engine.Coordinator implements it.
type Starter interface {
	StartExecution(ctx context.Context, req engine.StartRequest) (*models.Execution, error)
}

const subjectLockStripes = 64

// Dispatcher matches trigger events against published workflows.
type Dispatcher struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	starter    Starter
	logger     *slog.Logger

	// subjectLocks serializes dispatches of the same subject within this process.
	subjectLocks [subjectLockStripes]sync.Mutex
}

func NewDispatcher(p persistence.Persistence, starter Starter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		workflows:  p.WorkflowRepository(),
		executions: p.ExecutionRepository(),
		starter:    starter,
		logger:     logger.With("module", "trigger_dispatcher"),
	}
}

// Register subscribes the dispatcher to lead events on the bus.
func (d *Dispatcher) Register(ctx context.Context, subscriber eventbus.EventSubscriber) error {
	err := subscriber.Handle(ctx, events.LeadStageChangedEvent, d.handleStageChanged)
	if err != nil {
		return fmt.Errorf("failed to handle %s: %w", events.LeadStageChangedEvent, err)
	}

	err = subscriber.Handle(ctx, events.LeadPurchaseCompletedEvent, d.handlePurchaseCompleted)
	if err != nil {
		return fmt.Errorf("failed to handle %s: %w", events.LeadPurchaseCompletedEvent, err)
	}

	return nil
}

func (d *Dispatcher) handleStageChanged(ctx context.Context, payload any) error {
	event, ok := payload.(*events.LeadStageChanged)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEvent, payload)
	}

	if err := event.Validate(); err != nil {
		d.logger.WarnContext(ctx, "Dropping invalid lead event", "error", err)

		return nil
	}

	_, err := d.Dispatch(ctx, event.TriggerEvent())

	return err
}

func (d *Dispatcher) handlePurchaseCompleted(ctx context.Context, payload any) error {
	event, ok := payload.(*events.LeadPurchaseCompleted)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEvent, payload)
	}

	if err := event.Validate(); err != nil {
		d.logger.WarnContext(ctx, "Dropping invalid lead event", "error", err)

		return nil
	}

	_, err := d.Dispatch(ctx, event.TriggerEvent())

	return err
}

// Dispatch starts one execution per published workflow whose trigger matches
// event. A workflow is skipped when the subject already has an unfinished
// execution of it. Dispatches of one subject are serialized within this
// process; across processes the Kafka transport keys events by subject, so a
// subject's events reach one consumer of the group. Start failures are
// logged; only a failure to look up the published workflows is returned, so
// the event can be redelivered.
func (d *Dispatcher) Dispatch(ctx context.Context, event models.TriggerEvent) ([]*models.Execution, error) {
	logger := d.logger.With("event_type", event.Type, "subject_id", event.SubjectID, "tenant_id", event.TenantID)

	definitions, err := d.workflows.Published(ctx, event.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list published workflows: %w", err)
	}

	unlock := d.lockSubject(event.SubjectID)
	defer unlock()

	active, err := d.activeWorkflows(ctx, event.SubjectID)
	if err != nil {
		return nil, err
	}

	started := make([]*models.Execution, 0)

	for _, definition := range definitions {
		if !matches(definition, event) {
			continue
		}

		if active[definition.ID] {
			logger.InfoContext(ctx, "Subject already in workflow, skipping", "workflow_id", definition.ID)

			continue
		}

		execution, err := d.starter.StartExecution(ctx, engine.StartRequest{
			WorkflowID:  definition.ID,
			SubjectID:   event.SubjectID,
			ChannelID:   event.ChannelID,
			ContextData: event.ContextData,
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to start execution", "workflow_id", definition.ID, "error", err)

			continue
		}

		started = append(started, execution)
	}

	logger.InfoContext(ctx, "Trigger event dispatched", "matched_executions", len(started))

	return started, nil
}

func (d *Dispatcher) lockSubject(subjectID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subjectID))

	mu := &d.subjectLocks[h.Sum32()%subjectLockStripes]
	mu.Lock()

	return mu.Unlock
}

func (d *Dispatcher) activeWorkflows(ctx context.Context, subjectID string) (map[string]bool, error) {
	executions, err := d.executions.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions of subject %s: %w", subjectID, err)
	}

	active := make(map[string]bool, len(executions))

	for _, execution := range executions {
		if !execution.Status.IsTerminal() {
			active[execution.WorkflowID] = true
		}
	}

	return active, nil
}

func matches(definition *models.WorkflowDefinition, event models.TriggerEvent) bool {
	for _, node := range definition.TriggerNodes() {
		config, ok := node.Config.(*models.TriggerConfig)
		if ok && config.Matches(event) {
			return true
		}
	}

	return false
}
