// Package models defines the core domain models for lead automation workflows.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft       WorkflowStatus = "draft"       // Editable, not executable
	WorkflowStatusPublished   WorkflowStatus = "published"   // Immutable, executable
	WorkflowStatusUnpublished WorkflowStatus = "unpublished" // Historical, not executable
)

// WorkflowDefinition is a user-authored automation graph.
type WorkflowDefinition struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"             validate:"required"`
	Name        string         `json:"name"                  validate:"required,min=3"`
	Description string         `json:"description"`
	Status      WorkflowStatus `json:"status"                validate:"required,oneof=draft published unpublished"`
	Nodes       []*Node        `json:"nodes"                 validate:"dive"`
	Edges       []*Edge        `json:"edges"                 validate:"dive"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}

// IsPublished reports whether new executions may be started from the definition.
func (w *WorkflowDefinition) IsPublished() bool {
	return w.Status == WorkflowStatusPublished
}

// TriggerNodes returns every node of type Trigger, in authoring order.
func (w *WorkflowDefinition) TriggerNodes() []*Node {
	var triggers []*Node

	for _, node := range w.Nodes {
		if node.Type == NodeTypeTrigger {
			triggers = append(triggers, node)
		}
	}

	return triggers
}

// Edge connects two nodes. An empty BranchHandle marks the unlabeled edge.
type Edge struct {
	ID           string `json:"id"                      validate:"required"`
	SourceNodeID string `json:"source_node_id"          validate:"required"`
	TargetNodeID string `json:"target_node_id"          validate:"required"`
	BranchHandle string `json:"branch_handle,omitempty"`
}

// Branch handles emitted by smart condition nodes.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)
