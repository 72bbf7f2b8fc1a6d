// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/google/uuid"
)

// TriggerNode creates a trigger node listening for event.
func TriggerNode(id string, event models.TriggerEventType) *models.Node {
	return &models.Node{ID: id, Name: "Trigger", Type: models.NodeTypeTrigger, Config: &models.TriggerConfig{Event: event}}
}

// StaticMessageNode creates a message node sending content verbatim.
func StaticMessageNode(id, content string) *models.Node {
	return &models.Node{
		ID:     id,
		Name:   "Message",
		Type:   models.NodeTypeMessage,
		Config: &models.MessageConfig{Mode: models.MessageModeStatic, Content: content},
	}
}

// GeneratedMessageNode creates a message node whose content is generated from instruction.
func GeneratedMessageNode(id, instruction string) *models.Node {
	return &models.Node{
		ID:     id,
		Name:   "Generated message",
		Type:   models.NodeTypeMessage,
		Config: &models.MessageConfig{Mode: models.MessageModeGenerated, PromptTemplate: instruction},
	}
}

// WaitNode creates a wait node.
func WaitNode(id string, amount int, unit models.WaitUnit) *models.Node {
	return &models.Node{ID: id, Name: "Wait", Type: models.NodeTypeWait, Config: &models.WaitConfig{Amount: amount, Unit: unit}}
}

// RepliedRecentlyNode creates a smart condition node checking for a recent reply.
func RepliedRecentlyNode(id string) *models.Node {
	return &models.Node{
		ID:     id,
		Name:   "Replied?",
		Type:   models.NodeTypeSmartCondition,
		Config: &models.SmartConditionConfig{Kind: models.ConditionRepliedRecently},
	}
}

// RuleNode creates a smart condition node evaluated by the reasoning collaborator.
func RuleNode(id, rule string) *models.Node {
	return &models.Node{
		ID:     id,
		Name:   "Rule",
		Type:   models.NodeTypeSmartCondition,
		Config: &models.SmartConditionConfig{Kind: models.ConditionNaturalLanguageRule, RuleText: rule},
	}
}

// StopNode creates a stop automation node.
func StopNode(id, reason string) *models.Node {
	return &models.Node{ID: id, Name: "Stop", Type: models.NodeTypeStopAutomation, Config: &models.StopAutomationConfig{Reason: reason}}
}

// UnknownNode creates a node of a type the engine does not recognise.
func UnknownNode(id string, nodeType models.NodeType) *models.Node {
	return &models.Node{ID: id, Name: "Future", Type: nodeType, Config: &models.UnknownConfig{Type: nodeType, Raw: map[string]any{}}}
}

// Edge creates an unlabeled edge.
func Edge(source, target string) *models.Edge {
	return BranchEdge(source, target, "")
}

// BranchEdge creates an edge carrying a branch handle.
func BranchEdge(source, target, handle string) *models.Edge {
	return &models.Edge{
		ID:           fmt.Sprintf("%s-%s-%s", source, handle, target),
		SourceNodeID: source,
		TargetNodeID: target,
		BranchHandle: handle,
	}
}

// CreateTestDefinition creates a published definition with default values that can be overridden.
func CreateTestDefinition(nodes []*models.Node, edges []*models.Edge, overrides ...func(*models.WorkflowDefinition)) *models.WorkflowDefinition {
	now := time.Now().UTC()

	def := &models.WorkflowDefinition{
		ID:          uuid.New().String(),
		TenantID:    "tenant-1",
		Name:        "Test Workflow",
		Description: "Workflow used in tests",
		Status:      models.WorkflowStatusPublished,
		Nodes:       nodes,
		Edges:       edges,
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &now,
	}

	for _, override := range overrides {
		override(def)
	}

	return def
}

// WithStatus sets the definition status.
func WithStatus(status models.WorkflowStatus) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Status = status
		if status != models.WorkflowStatusPublished {
			d.PublishedAt = nil
		}
	}
}

// WithID sets the definition id.
func WithID(id string) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.ID = id
	}
}

// NurtureDefinition builds the welcome / wait a day / replied? flow:
// Trigger -> Message("Welcome") -> Wait(1 day) -> SmartCondition(repliedRecently)
// -[true]-> Message("Great, let's continue"); -[false]-> StopAutomation("no reply").
func NurtureDefinition(overrides ...func(*models.WorkflowDefinition)) *models.WorkflowDefinition {
	return CreateTestDefinition(
		[]*models.Node{
			TriggerNode("trigger", models.TriggerEventStageChanged),
			StaticMessageNode("welcome", "Welcome"),
			WaitNode("wait", 1, models.WaitUnitDays),
			RepliedRecentlyNode("replied"),
			StaticMessageNode("continue", "Great, let's continue"),
			StopNode("stop", "no reply"),
		},
		[]*models.Edge{
			Edge("trigger", "welcome"),
			Edge("welcome", "wait"),
			Edge("wait", "replied"),
			BranchEdge("replied", "continue", models.BranchTrue),
			BranchEdge("replied", "stop", models.BranchFalse),
		},
		overrides...,
	)
}
