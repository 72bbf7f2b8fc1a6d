package template

import (
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSubject() *models.Subject {
	sentAt := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	return &models.Subject{
		ID:         "lead-1",
		Name:       "Ana",
		Stage:      "qualified",
		Attributes: map[string]any{"plan": "pro"},
		RecentMessages: []models.ConversationMessage{
			{Direction: models.MessageDirectionOutbound, Content: "Hi Ana!", SentAt: sentAt},
			{Direction: models.MessageDirectionInbound, Content: "What does the pro plan include?", SentAt: sentAt.Add(time.Minute)},
		},
	}
}

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"name": "John",
		"user": map[string]any{"email": "john@example.com"},
	}

	result, err := Render("Hello {{ .name }} <{{ .user.email }}>", data)
	require.NoError(t, err)
	assert.Equal(t, "Hello John <john@example.com>", result)
}

func TestRender_Default(t *testing.T) {
	result, err := Render(`{{ default "there" .name }}`, map[string]any{"name": ""})
	require.NoError(t, err)
	assert.Equal(t, "there", result)
}

func TestRender_InvalidTemplate(t *testing.T) {
	_, err := Render("{{ .name ", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")
}

func TestInstruction(t *testing.T) {
	execution := &models.Execution{ID: "exec-1", ContextData: map[string]any{"product": "Starter kit"}}

	assert.Equal(t, "plain text", Instruction("plain text", testSubject(), execution))
	assert.Equal(t,
		"Thank Ana for buying Starter kit",
		Instruction("Thank {{ .subject.name }} for buying {{ .context.product }}", testSubject(), execution),
	)
	assert.Equal(t, "broken {{ .subject.name", Instruction("broken {{ .subject.name", testSubject(), execution))
}

func TestMessagePrompt(t *testing.T) {
	prompt, err := MessagePrompt("Invite {{ .subject.name }} to a demo", testSubject(), &models.Execution{})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Invite Ana to a demo")
	assert.Contains(t, prompt, "[outbound] Hi Ana!")
	assert.Contains(t, prompt, "[inbound] What does the pro plan include?")
}

func TestRulePrompt(t *testing.T) {
	prompt, err := RulePrompt("The lead asked about pricing", testSubject(), &models.Execution{})
	require.NoError(t, err)

	assert.Contains(t, prompt, "The lead asked about pricing")
	assert.Contains(t, prompt, "- plan: pro")
	assert.Contains(t, prompt, "true or false")
}

func TestRulePrompt_WithoutSubject(t *testing.T) {
	prompt, err := RulePrompt("Always", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Always")
	assert.NotContains(t, prompt, "Recent conversation")
}

func TestRecentConversation(t *testing.T) {
	messages := make([]models.ConversationMessage, 15)
	for i := range messages {
		messages[i] = models.ConversationMessage{Content: string(rune('a' + i))}
	}

	recent := RecentConversation(messages, 10)
	require.Len(t, recent, 10)
	assert.Equal(t, "f", recent[0].Content)
	assert.Equal(t, "o", recent[9].Content)

	assert.Len(t, RecentConversation(messages[:3], 10), 3)
}
