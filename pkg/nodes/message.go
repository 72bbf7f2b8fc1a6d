package nodes

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dukex/leadflow/pkg/conditions"
	"github.com/dukex/leadflow/pkg/graph"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/template"
)

var (
	errNoGenerator  = errors.New("no text generator configured")
	errBlankContent = errors.New("text generator returned blank content")
)

func (e *Executor) message(
	ctx context.Context,
	logger *slog.Logger,
	g *graph.Graph,
	node *models.Node,
	cfg *models.MessageConfig,
	execution *models.Execution,
) Step {
	content := cfg.Content

	if cfg.Mode == models.MessageModeGenerated {
		content = e.generate(ctx, logger, cfg.PromptTemplate, execution)
	}

	if e.messenger == nil {
		logger.WarnContext(ctx, "No messenger configured, message not delivered")
	} else {
		err := e.messenger.Send(ctx, execution.ChannelID, content, protocol.DeliverySystemNotification)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to deliver message",
				"channel_id", execution.ChannelID,
				"error", err,
			)
		} else {
			logger.InfoContext(ctx, "Message delivered", "channel_id", execution.ChannelID)
		}
	}

	return e.advance(g, node.ID)
}

// generate produces message content. The authored instruction is sent
// unchanged when generation fails.
func (e *Executor) generate(ctx context.Context, logger *slog.Logger, instruction string, execution *models.Execution) string {
	subject := e.subject(ctx, execution)

	content, err := e.complete(ctx, instruction, subject, execution)
	if err != nil {
		logger.WarnContext(ctx, "Falling back to instruction text", "error", err)

		return instruction
	}

	return content
}

func (e *Executor) complete(
	ctx context.Context,
	instruction string,
	subject *models.Subject,
	execution *models.Execution,
) (string, error) {
	if e.generator == nil {
		return "", errNoGenerator
	}

	prompt, err := template.MessagePrompt(instruction, subject, execution)
	if err != nil {
		return "", err
	}

	content, err := e.generator.Complete(ctx, prompt, conditions.SubjectContext(subject, execution))
	if err != nil {
		return "", err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", errBlankContent
	}

	return content, nil
}
