package nodes

import (
	"github.com/dukex/leadflow/pkg/graph"
	"github.com/dukex/leadflow/pkg/models"
)

// wait computes the due time and pre-resolves the node to resume at.
func (e *Executor) wait(g *graph.Graph, node *models.Node, cfg *models.WaitConfig) Step {
	return Suspend(g.Next(node.ID, ""), e.clock.Now().Add(cfg.Duration()))
}
