package web

import (
	"encoding/json"
	"fmt"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/services"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
// Nodes and edges may be sent at once or added later through the node endpoints.
type CreateWorkflowRequest struct {
	TenantID    string         `json:"tenant_id"          validate:"required"`
	Name        string         `json:"name"               validate:"required,min=3"`
	Description string         `json:"description"`
	Nodes       []*models.Node `json:"nodes"`
	Edges       []*models.Edge `json:"edges"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional; nodes and edges replace the whole graph when present.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Nodes       []*models.Node `json:"nodes,omitempty"`
	Edges       []*models.Edge `json:"edges,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CreateNodeRequest represents the request body for adding a node. Config is
// decoded according to Type.
type CreateNodeRequest struct {
	ID        string          `json:"id"`
	Type      models.NodeType `json:"type"       validate:"required"`
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config"`
	PositionX int             `json:"position_x"`
	PositionY int             `json:"position_y"`
}

// UpdateNodeRequest represents the request body for updating a node. The type
// cannot change; an absent config keeps the current one.
type UpdateNodeRequest struct {
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config,omitempty"`
	PositionX int             `json:"position_x"`
	PositionY int             `json:"position_y"`
}

// CreateEdgeRequest represents the request body for connecting two nodes.
type CreateEdgeRequest struct {
	SourceNodeID string `json:"source_node_id" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
	BranchHandle string `json:"branch_handle"  validate:"omitempty,oneof=true false"`
}

// StartExecutionRequest represents the request body of a manual test run.
type StartExecutionRequest struct {
	SubjectID   string         `json:"subject_id"   validate:"required"`
	ChannelID   string         `json:"channel_id"`
	ContextData map[string]any `json:"context_data"`
}

// ExecutionListResponse wraps execution listings.
type ExecutionListResponse struct {
	Executions []*models.Execution `json:"executions"`
	TotalCount int                 `json:"total_count"`
}

func (r CreateNodeRequest) toService() (*services.CreateNodeRequest, error) {
	config, err := models.DecodeNodeConfig(r.Type, r.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrInvalidNode, err)
	}

	return &services.CreateNodeRequest{
		ID:        r.ID,
		Name:      r.Name,
		Config:    config,
		PositionX: r.PositionX,
		PositionY: r.PositionY,
	}, nil
}

func (r UpdateNodeRequest) toService(nodeType models.NodeType) (*services.UpdateNodeRequest, error) {
	req := &services.UpdateNodeRequest{
		Name:      r.Name,
		PositionX: r.PositionX,
		PositionY: r.PositionY,
	}

	if len(r.Config) == 0 {
		return req, nil
	}

	config, err := models.DecodeNodeConfig(nodeType, r.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrInvalidNode, err)
	}

	req.Config = config

	return req, nil
}
