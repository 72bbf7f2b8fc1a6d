package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// CreateNodeRequest represents the request to add a node to a workflow.
// ID is generated when empty.
type CreateNodeRequest struct {
	ID        string
	Name      string
	Config    models.NodeConfig
	PositionX int
	PositionY int
}

// UpdateNodeRequest represents the request to update an existing node. The
// node type cannot change.
type UpdateNodeRequest struct {
	Name      string
	Config    models.NodeConfig
	PositionX int
	PositionY int
}

// CreateEdgeRequest represents the request to connect two nodes.
type CreateEdgeRequest struct {
	SourceNodeID string
	TargetNodeID string
	BranchHandle string
}

// Node edits the graph of workflows that are not published.
type Node struct {
	persistence persistence.Persistence
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewNode creates a new node service.
func NewNode(persistence persistence.Persistence, logger *slog.Logger, opts ...Option) *Node {
	o := buildOptions(opts)

	return &Node{
		persistence: persistence,
		clock:       o.clock,
		logger:      logger.With("module", "node_service"),
	}
}

// CreateNode adds a node to the specified workflow.
func (n *Node) CreateNode(ctx context.Context, workflowID string, req *CreateNodeRequest) (*models.Node, error) {
	if req.Config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidNode)
	}

	definition, err := n.editable(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	node := &models.Node{
		ID:        req.ID,
		Name:      req.Name,
		Type:      req.Config.NodeType(),
		Config:    req.Config,
		PositionX: req.PositionX,
		PositionY: req.PositionY,
	}

	if node.ID == "" {
		node.ID = uuid.New().String()
	}

	if findNode(definition, node.ID) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNodeAlreadyExists, node.ID)
	}

	definition.Nodes = append(definition.Nodes, node)

	if err := n.save(ctx, definition); err != nil {
		return nil, err
	}

	return node, nil
}

// GetNode retrieves a node of the specified workflow.
func (n *Node) GetNode(ctx context.Context, workflowID, nodeID string) (*models.Node, error) {
	definition, err := n.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	index := findNode(definition, nodeID)
	if index < 0 {
		return nil, ErrNodeNotFound
	}

	return definition.Nodes[index], nil
}

// UpdateNode updates the name, config and position of a node.
func (n *Node) UpdateNode(ctx context.Context, workflowID, nodeID string, req *UpdateNodeRequest) (*models.Node, error) {
	definition, err := n.editable(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	index := findNode(definition, nodeID)
	if index < 0 {
		return nil, ErrNodeNotFound
	}

	node := definition.Nodes[index]

	if req.Config != nil {
		if req.Config.NodeType() != node.Type {
			return nil, fmt.Errorf("%w: cannot change node type from %s to %s", ErrInvalidNode, node.Type, req.Config.NodeType())
		}

		node.Config = req.Config
	}

	node.Name = req.Name
	node.PositionX = req.PositionX
	node.PositionY = req.PositionY

	if err := n.save(ctx, definition); err != nil {
		return nil, err
	}

	return node, nil
}

// DeleteNode deletes a node and every edge attached to it.
func (n *Node) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	definition, err := n.editable(ctx, workflowID)
	if err != nil {
		return err
	}

	index := findNode(definition, nodeID)
	if index < 0 {
		return ErrNodeNotFound
	}

	definition.Nodes = slices.Delete(definition.Nodes, index, index+1)
	definition.Edges = slices.DeleteFunc(definition.Edges, func(edge *models.Edge) bool {
		return edge.SourceNodeID == nodeID || edge.TargetNodeID == nodeID
	})

	return n.save(ctx, definition)
}

// CreateEdge connects two existing nodes. A source node accepts one edge per
// branch handle.
func (n *Node) CreateEdge(ctx context.Context, workflowID string, req *CreateEdgeRequest) (*models.Edge, error) {
	definition, err := n.editable(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if findNode(definition, req.SourceNodeID) < 0 {
		return nil, fmt.Errorf("%w: unknown source node %q", ErrInvalidEdge, req.SourceNodeID)
	}

	if findNode(definition, req.TargetNodeID) < 0 {
		return nil, fmt.Errorf("%w: unknown target node %q", ErrInvalidEdge, req.TargetNodeID)
	}

	for _, edge := range definition.Edges {
		if edge.SourceNodeID == req.SourceNodeID && edge.BranchHandle == req.BranchHandle {
			return nil, fmt.Errorf("%w: node %q already has an edge with handle %q", ErrEdgeAlreadyExists, req.SourceNodeID, req.BranchHandle)
		}
	}

	edge := &models.Edge{
		ID:           uuid.New().String(),
		SourceNodeID: req.SourceNodeID,
		TargetNodeID: req.TargetNodeID,
		BranchHandle: req.BranchHandle,
	}

	definition.Edges = append(definition.Edges, edge)

	if err := n.save(ctx, definition); err != nil {
		return nil, err
	}

	return edge, nil
}

// DeleteEdge removes an edge from the workflow.
func (n *Node) DeleteEdge(ctx context.Context, workflowID, edgeID string) error {
	definition, err := n.editable(ctx, workflowID)
	if err != nil {
		return err
	}

	before := len(definition.Edges)
	definition.Edges = slices.DeleteFunc(definition.Edges, func(edge *models.Edge) bool {
		return edge.ID == edgeID
	})

	if len(definition.Edges) == before {
		return ErrEdgeNotFound
	}

	return n.save(ctx, definition)
}

func (n *Node) editable(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	definition, err := n.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if definition.IsPublished() {
		return nil, ErrCannotModifyPublished
	}

	return definition, nil
}

func (n *Node) save(ctx context.Context, definition *models.WorkflowDefinition) error {
	definition.UpdatedAt = n.clock.Now().UTC()

	err := n.persistence.WorkflowRepository().Save(ctx, definition)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", definition.ID, err)
	}

	n.logger.DebugContext(ctx, "Workflow graph updated", "workflow_id", definition.ID,
		"nodes", len(definition.Nodes), "edges", len(definition.Edges))

	return nil
}

func findNode(definition *models.WorkflowDefinition, nodeID string) int {
	return slices.IndexFunc(definition.Nodes, func(node *models.Node) bool {
		return node != nil && node.ID == nodeID
	})
}
