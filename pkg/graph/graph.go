// Package graph compiles workflow definitions into validated, immutable graphs.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type edgeKey struct {
	source string
	handle string
}

// Graph is a validated workflow definition indexed for traversal. It is safe
// for concurrent use because it is never mutated after Compile.
type Graph struct {
	definition  *models.WorkflowDefinition
	nodes       map[string]*models.Node
	outgoing    map[edgeKey]*models.Edge
	trigger     *models.Node
	unreachable []string
}

// Compile validates def and builds its graph. Every problem found is reported;
// the returned error matches each relevant sentinel through errors.Is.
func Compile(def *models.WorkflowDefinition) (*Graph, error) {
	g := &Graph{
		definition: def,
		nodes:      make(map[string]*models.Node, len(def.Nodes)),
		outgoing:   make(map[edgeKey]*models.Edge, len(def.Edges)),
	}

	var problems []error

	for _, node := range def.Nodes {
		if node == nil {
			problems = append(problems, fmt.Errorf("%w: nil node", ErrInvalidNode))

			continue
		}

		if _, exists := g.nodes[node.ID]; exists {
			problems = append(problems, fmt.Errorf("%w: %q", ErrDuplicateNodeID, node.ID))

			continue
		}

		err := validateNode(node)
		if err != nil {
			problems = append(problems, err)
		}

		g.nodes[node.ID] = node
	}

	triggers := def.TriggerNodes()

	switch {
	case len(triggers) == 0:
		problems = append(problems, ErrNoTrigger)
	case len(triggers) > 1:
		problems = append(problems, fmt.Errorf("%w: found %d", ErrMultipleTriggers, len(triggers)))
	default:
		g.trigger = triggers[0]
	}

	for _, edge := range def.Edges {
		if edge == nil {
			continue
		}

		if _, ok := g.nodes[edge.SourceNodeID]; !ok {
			problems = append(problems, fmt.Errorf("%w: edge %q source %q", ErrUnknownNodeReference, edge.ID, edge.SourceNodeID))

			continue
		}

		if _, ok := g.nodes[edge.TargetNodeID]; !ok {
			problems = append(problems, fmt.Errorf("%w: edge %q target %q", ErrUnknownNodeReference, edge.ID, edge.TargetNodeID))

			continue
		}

		key := edgeKey{source: edge.SourceNodeID, handle: edge.BranchHandle}
		if existing, ok := g.outgoing[key]; ok {
			problems = append(problems, fmt.Errorf("%w: node %q has edges %q and %q with handle %q",
				ErrAmbiguousEdge, edge.SourceNodeID, existing.ID, edge.ID, edge.BranchHandle))

			continue
		}

		g.outgoing[key] = edge
	}

	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}

	cycle := g.findCycleWithoutWait()
	if len(cycle) > 0 {
		return nil, fmt.Errorf("%w: nodes %v", ErrCycleWithoutWait, cycle)
	}

	g.unreachable = g.findUnreachable()

	return g, nil
}

func validateNode(node *models.Node) error {
	if node.ID == "" {
		return fmt.Errorf("%w: node without id", ErrInvalidNode)
	}

	if node.Config == nil {
		if models.IsKnownNodeType(node.Type) {
			return fmt.Errorf("%w: node %q has no config", ErrInvalidNode, node.ID)
		}

		return nil
	}

	if node.Config.NodeType() != node.Type {
		return fmt.Errorf("%w: node %q: %w", ErrInvalidNode, node.ID, models.ErrNodeConfigMismatch)
	}

	if _, unknown := node.Config.(*models.UnknownConfig); unknown {
		return nil
	}

	err := validate.Struct(node.Config)
	if err != nil {
		return fmt.Errorf("%w: node %q: %w", ErrInvalidNode, node.ID, err)
	}

	if wait, ok := node.Config.(*models.WaitConfig); ok {
		err := wait.Validate()
		if err != nil {
			return fmt.Errorf("%w: node %q: %w", ErrInvalidNode, node.ID, err)
		}
	}

	if condition, ok := node.Config.(*models.SmartConditionConfig); ok {
		_, err := condition.Threshold()
		if err != nil {
			return fmt.Errorf("%w: node %q: %w", ErrInvalidNode, node.ID, err)
		}
	}

	return nil
}

// findCycleWithoutWait runs Kahn's algorithm over the subgraph that excludes
// wait nodes. Whatever cannot be drained lies on a cycle with no wait in it.
func (g *Graph) findCycleWithoutWait() []string {
	inDegree := make(map[string]int)
	adjacent := make(map[string][]string)

	for id, node := range g.nodes {
		if node.Type != models.NodeTypeWait {
			inDegree[id] = 0
		}
	}

	for _, edge := range g.outgoing {
		_, sourceIn := inDegree[edge.SourceNodeID]
		_, targetIn := inDegree[edge.TargetNodeID]

		if !sourceIn || !targetIn {
			continue
		}

		adjacent[edge.SourceNodeID] = append(adjacent[edge.SourceNodeID], edge.TargetNodeID)
		inDegree[edge.TargetNodeID]++
	}

	queue := make([]string, 0, len(inDegree))

	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, next := range adjacent[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}

		delete(inDegree, id)
	}

	if len(inDegree) == 0 {
		return nil
	}

	cycle := make([]string, 0, len(inDegree))
	for id := range inDegree {
		cycle = append(cycle, id)
	}

	sort.Strings(cycle)

	return cycle
}

func (g *Graph) findUnreachable() []string {
	reached := map[string]bool{g.trigger.ID: true}
	queue := []string{g.trigger.ID}

	targets := make(map[string][]string)
	for _, edge := range g.outgoing {
		targets[edge.SourceNodeID] = append(targets[edge.SourceNodeID], edge.TargetNodeID)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, next := range targets[id] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}

	var unreachable []string

	for _, node := range g.definition.Nodes {
		if !reached[node.ID] {
			unreachable = append(unreachable, node.ID)
		}
	}

	return unreachable
}

// Definition returns the definition the graph was compiled from.
func (g *Graph) Definition() *models.WorkflowDefinition {
	return g.definition
}

// Trigger returns the unique entry node.
func (g *Graph) Trigger() *models.Node {
	return g.trigger
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*models.Node, bool) {
	node, ok := g.nodes[id]

	return node, ok
}

// OutgoingEdge resolves the edge leaving nodeID. An empty handle selects the
// unlabeled edge. The boolean is false when no such edge exists, which marks
// the end of a path rather than an error.
func (g *Graph) OutgoingEdge(nodeID, handle string) (*models.Edge, bool) {
	edge, ok := g.outgoing[edgeKey{source: nodeID, handle: handle}]

	return edge, ok
}

// Next returns the target of OutgoingEdge, or "" at the end of a path.
func (g *Graph) Next(nodeID, handle string) string {
	edge, ok := g.OutgoingEdge(nodeID, handle)
	if !ok {
		return ""
	}

	return edge.TargetNodeID
}

// Unreachable lists nodes that cannot be reached from the trigger. They are
// dead but not invalid.
func (g *Graph) Unreachable() []string {
	return g.unreachable
}
