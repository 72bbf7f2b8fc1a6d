// Package events defines the events exchanged over the event bus: execution
// lifecycle notifications going out and lead activity coming in.
package events

import (
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every leadflow event.
const Topic = "leadflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow definition events.
	WorkflowPublishedEvent   EventType = "workflow.published"
	WorkflowUnpublishedEvent EventType = "workflow.unpublished"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionSuspendedEvent EventType = "execution.suspended"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionStoppedEvent   EventType = "execution.stopped"
	ExecutionFailedEvent    EventType = "execution.failed"

	// Lead activity published by the CRM.
	LeadStageChangedEvent      EventType = "lead.stage_changed"
	LeadPurchaseCompletedEvent EventType = "lead.purchase_completed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// ExecutionLifecycle reports a state change of one execution. Type tells which one.
type ExecutionLifecycle struct {
	BaseEvent

	ExecutionID string                 `json:"execution_id"`
	SubjectID   string                 `json:"subject_id"`
	NodeID      string                 `json:"node_id,omitempty"`
	Status      models.ExecutionStatus `json:"status"`
	ResumeAt    *time.Time             `json:"resume_at,omitempty"`
	Steps       int                    `json:"steps"`
	Error       string                 `json:"error,omitempty"`
}

func (e ExecutionLifecycle) GetType() EventType {
	return e.Type
}

// NewExecutionLifecycle snapshots execution into a lifecycle event.
func NewExecutionLifecycle(eventType EventType, execution *models.Execution, workerID string) ExecutionLifecycle {
	base := NewBaseEvent(eventType, execution.WorkflowID)
	base.TenantID = execution.TenantID
	base.WorkerID = workerID

	event := ExecutionLifecycle{
		BaseEvent:   base,
		ExecutionID: execution.ID,
		SubjectID:   execution.SubjectID,
		NodeID:      execution.CurrentNodeID,
		Status:      execution.Status,
		Steps:       execution.Steps,
		Error:       execution.Error,
	}

	if execution.Status == models.ExecutionStatusPending && execution.ScheduledFor != nil {
		resumeAt := *execution.ScheduledFor
		event.ResumeAt = &resumeAt
	}

	return event
}

// LifecycleEventFor maps a terminal status to its lifecycle event type.
func LifecycleEventFor(status models.ExecutionStatus) EventType {
	switch status {
	case models.ExecutionStatusStopped:
		return ExecutionStoppedEvent
	case models.ExecutionStatusFailed:
		return ExecutionFailedEvent
	case models.ExecutionStatusPending:
		return ExecutionSuspendedEvent
	default:
		return ExecutionCompletedEvent
	}
}

type WorkflowPublished struct {
	BaseEvent

	Name string `json:"name"`
}

func (e WorkflowPublished) GetType() EventType {
	return WorkflowPublishedEvent
}

type WorkflowUnpublished struct {
	BaseEvent

	Name string `json:"name"`
}

func (e WorkflowUnpublished) GetType() EventType {
	return WorkflowUnpublishedEvent
}
