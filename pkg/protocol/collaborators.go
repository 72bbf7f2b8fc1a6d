// Package protocol defines the contracts between the engine and its external collaborators.
package protocol

import (
	"context"

	"github.com/dukex/leadflow/pkg/models"
)

// DeliveryHint tells the messaging channel how to deliver a message.
type DeliveryHint string

const (
	// DeliverySystemNotification marks an out-of-session, system-initiated message.
	DeliverySystemNotification DeliveryHint = "system_notification"
)

// Messenger delivers content to a subject's channel.
type Messenger interface {
	Send(ctx context.Context, channelID, content string, hint DeliveryHint) error
}

// SubjectContext is what a text generator may know about the subject.
type SubjectContext struct {
	SubjectID      string                       `json:"subject_id"`
	Attributes     map[string]any               `json:"attributes,omitempty"`
	RecentMessages []models.ConversationMessage `json:"recent_messages,omitempty"`
	Variables      map[string]any               `json:"variables,omitempty"`
}

// TextGenerator completes a prompt with free text.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, subject SubjectContext) (string, error)
}

// AutomationDisabler turns off further automation for a subject.
type AutomationDisabler interface {
	DisableAutomation(ctx context.Context, subjectID, reason string) error
}

// SubjectDirectory resolves subjects by id.
type SubjectDirectory interface {
	Subject(ctx context.Context, subjectID string) (*models.Subject, error)
}

// Collaborators groups every external dependency of the node executor.
type Collaborators struct {
	Messenger     Messenger
	TextGenerator TextGenerator
	Disabler      AutomationDisabler
	Subjects      SubjectDirectory
}
