package template

import (
	"strings"

	"github.com/dukex/leadflow/pkg/models"
)

const messagePromptTemplate = `You are writing a short message to a lead on behalf of a business.
Follow the instruction below. Reply with the message text only.

Instruction:
{{ .instruction }}
{{ if .conversation }}
Recent conversation (oldest first):
{{ range .conversation }}[{{ .Direction }}] {{ .Content }}
{{ end }}{{ end }}`

const rulePromptTemplate = `Decide whether the following rule holds for this lead.
Answer with the single word true or false.

Rule:
{{ .rule }}
{{ with .attributes }}
Lead attributes:
{{ range $key, $value := . }}- {{ $key }}: {{ $value }}
{{ end }}{{ end }}{{ if .conversation }}
Recent conversation (oldest first):
{{ range .conversation }}[{{ .Direction }}] {{ .Content }}
{{ end }}{{ end }}`

// MessagePrompt renders the generation prompt for a message node. Placeholders
// in the instruction are expanded first; an instruction that fails to render is
// used as written.
func MessagePrompt(instruction string, subject *models.Subject, execution *models.Execution) (string, error) {
	return Render(messagePromptTemplate, map[string]any{
		"instruction":  Instruction(instruction, subject, execution),
		"conversation": conversation(subject),
	})
}

// RulePrompt renders the reasoning prompt for a natural-language condition.
func RulePrompt(rule string, subject *models.Subject, execution *models.Execution) (string, error) {
	var attributes map[string]any
	if subject != nil {
		attributes = subject.Attributes
	}

	return Render(rulePromptTemplate, map[string]any{
		"rule":         Instruction(rule, subject, execution),
		"attributes":   attributes,
		"conversation": conversation(subject),
	})
}

// Instruction expands placeholders in authored text, falling back to the text itself.
func Instruction(text string, subject *models.Subject, execution *models.Execution) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	rendered, err := Render(text, Data(subject, execution))
	if err != nil {
		return text
	}

	return rendered
}

func conversation(subject *models.Subject) []models.ConversationMessage {
	if subject == nil {
		return nil
	}

	return RecentConversation(subject.RecentMessages, DefaultConversationWindow)
}
