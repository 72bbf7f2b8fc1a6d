package nodes

import (
	"context"

	"github.com/dukex/leadflow/pkg/graph"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/models"
)

// condition follows the "true" or "false" edge; a missing branch ends the execution.
func (e *Executor) condition(
	ctx context.Context,
	g *graph.Graph,
	node *models.Node,
	cfg *models.SmartConditionConfig,
	execution *models.Execution,
) Step {
	result := e.evaluator.Evaluate(ctx, cfg, e.subject(ctx, execution), execution)

	handle := models.BranchFalse
	if result {
		handle = models.BranchTrue
	}

	log.FromContext(ctx, e.logger).InfoContext(ctx, "Condition evaluated",
		"node_id", node.ID,
		"kind", cfg.Kind,
		"result", result,
	)

	next := g.Next(node.ID, handle)
	if next == "" {
		return Complete()
	}

	return Advance(next)
}
