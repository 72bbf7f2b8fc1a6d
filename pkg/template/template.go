// Package template provides prompt rendering for generated messages and natural-language conditions.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/leadflow/pkg/models"
)

// DefaultConversationWindow is how many recent messages are embedded in prompts.
const DefaultConversationWindow = 10

// Data builds the template data available to authored text: the subject, the
// execution context variables, and the execution identity.
func Data(subject *models.Subject, execution *models.Execution) map[string]any {
	data := map[string]any{
		"subject":   map[string]any{},
		"context":   map[string]any{},
		"execution": map[string]any{},
	}

	if subject != nil {
		data["subject"] = map[string]any{
			"id":         subject.ID,
			"name":       subject.Name,
			"stage":      subject.Stage,
			"attributes": subject.Attributes,
		}
	}

	if execution != nil {
		data["context"] = execution.ContextData
		data["execution"] = map[string]any{
			"id":          execution.ID,
			"workflow_id": execution.WorkflowID,
			"subject_id":  execution.SubjectID,
		}
	}

	return data
}

// Render executes templateStr against data and returns the trimmed result.
func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("prompt").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"default": func(fallback, value any) any {
				if value == nil || value == "" {
					return fallback
				}

				return value
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// RecentConversation returns at most limit of the latest messages, oldest first.
func RecentConversation(messages []models.ConversationMessage, limit int) []models.ConversationMessage {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}

	return messages[len(messages)-limit:]
}
