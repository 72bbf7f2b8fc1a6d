// Package conditions evaluates the branching decision of smart condition nodes.
package conditions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/template"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/jonboulle/clockwork"
)

// DefaultRecencyThreshold is how recent an inbound message must be for repliedRecently.
const DefaultRecencyThreshold = time.Hour

var errNoReasoner = errors.New("no text generator configured")

// Evaluator decides the boolean outcome of smart conditions. Evaluate never
// fails: every error is logged and treated as false.
type Evaluator struct {
	reasoner  protocol.TextGenerator
	clock     clockwork.Clock
	logger    *slog.Logger
	threshold time.Duration

	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock sets the clock used for recency checks.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Evaluator) {
		e.clock = clock
	}
}

// WithRecencyThreshold overrides DefaultRecencyThreshold.
func WithRecencyThreshold(threshold time.Duration) Option {
	return func(e *Evaluator) {
		if threshold > 0 {
			e.threshold = threshold
		}
	}
}

// NewEvaluator creates an evaluator. reasoner may be nil, in which case
// natural-language rules evaluate to false.
func NewEvaluator(reasoner protocol.TextGenerator, logger *slog.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		reasoner:  reasoner,
		clock:     clockwork.NewRealClock(),
		logger:    logger.With("module", "condition_evaluator"),
		threshold: DefaultRecencyThreshold,
		programs:  make(map[string]*vm.Program),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate returns the outcome of cfg for the given subject and execution.
// subject may be nil when it could not be resolved.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	cfg *models.SmartConditionConfig,
	subject *models.Subject,
	execution *models.Execution,
) bool {
	logger := e.logger.With("kind", cfg.Kind, "execution_id", execution.ID)

	switch cfg.Kind {
	case models.ConditionRepliedRecently:
		return e.repliedRecently(ctx, logger, cfg, subject)
	case models.ConditionNaturalLanguageRule:
		result, err := e.naturalLanguageRule(ctx, cfg, subject, execution)
		if err != nil {
			logger.WarnContext(ctx, "Natural language rule evaluated to false", "error", err)

			return false
		}

		return result
	case models.ConditionExpression:
		result, err := e.expression(cfg.Expression, subject, execution)
		if err != nil {
			logger.WarnContext(ctx, "Expression evaluated to false", "expression", cfg.Expression, "error", err)

			return false
		}

		return result
	default:
		logger.WarnContext(ctx, "Unsupported condition kind, evaluating to false")

		return false
	}
}

func (e *Evaluator) repliedRecently(
	ctx context.Context,
	logger *slog.Logger,
	cfg *models.SmartConditionConfig,
	subject *models.Subject,
) bool {
	if subject == nil || subject.LastInboundMessageAt == nil {
		return false
	}

	threshold := e.threshold

	override, err := cfg.Threshold()
	if err != nil {
		logger.WarnContext(ctx, "Ignoring invalid recency threshold", "error", err)
	} else if override > 0 {
		threshold = override
	}

	return e.clock.Since(*subject.LastInboundMessageAt) < threshold
}

func (e *Evaluator) naturalLanguageRule(
	ctx context.Context,
	cfg *models.SmartConditionConfig,
	subject *models.Subject,
	execution *models.Execution,
) (bool, error) {
	if e.reasoner == nil {
		return false, errNoReasoner
	}

	prompt, err := template.RulePrompt(cfg.RuleText, subject, execution)
	if err != nil {
		return false, fmt.Errorf("failed to render rule prompt: %w", err)
	}

	response, err := e.reasoner.Complete(ctx, prompt, SubjectContext(subject, execution))
	if err != nil {
		return false, fmt.Errorf("text generator failed: %w", err)
	}

	return strings.Contains(strings.ToLower(response), "true"), nil
}

func (e *Evaluator) expression(source string, subject *models.Subject, execution *models.Execution) (bool, error) {
	program, err := e.compile(source)
	if err != nil {
		return false, err
	}

	env := template.Data(subject, execution)
	if subject != nil && subject.LastInboundMessageAt != nil {
		env["minutes_since_reply"] = e.clock.Since(*subject.LastInboundMessageAt).Minutes()
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}

	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, expected bool", out)
	}

	return result, nil
}

func (e *Evaluator) compile(source string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[source]
	e.mu.RUnlock()

	if ok {
		return program, nil
	}

	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}

	e.mu.Lock()
	e.programs[source] = program
	e.mu.Unlock()

	return program, nil
}

// SubjectContext builds the collaborator view of a subject.
func SubjectContext(subject *models.Subject, execution *models.Execution) protocol.SubjectContext {
	subjectContext := protocol.SubjectContext{}

	if execution != nil {
		subjectContext.SubjectID = execution.SubjectID
		subjectContext.Variables = execution.ContextData
	}

	if subject != nil {
		subjectContext.SubjectID = subject.ID
		subjectContext.Attributes = subject.Attributes
		subjectContext.RecentMessages = template.RecentConversation(subject.RecentMessages, template.DefaultConversationWindow)
	}

	return subjectContext
}
