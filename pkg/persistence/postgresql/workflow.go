package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

const workflowColumns = `
	id
  , tenant_id
  , name
  , description
  , status
  , metadata
  , created_at
  , updated_at
  , published_at
`

// sortColumns maps allowed sort fields to columns; ORDER BY cannot be parameterized.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
}

type scanner interface {
	Scan(dest ...any) error
}

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// ListWorkflows returns one filtered and sorted page of workflows.
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	countQuery, listQuery, args, err := r.buildListQuery(&opts)
	if err != nil {
		return nil, err
	}

	var totalCount int64

	err = r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}

	workflows, err := r.query(ctx, listQuery, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, err
	}

	return &persistence.WorkflowListResult{
		Workflows:   workflows,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(workflows)) < totalCount,
	}, nil
}

// buildListQuery normalizes opts and returns the count and page queries. The page
// query takes the filter args followed by limit and offset.
func (r *WorkflowRepository) buildListQuery(opts *persistence.ListWorkflowsOptions) (string, string, []any, error) {
	err := opts.Normalize()
	if err != nil {
		return "", "", nil, err
	}

	where := []string{"deleted_at IS NULL"}
	args := []any{}

	if opts.TenantID != "" {
		args = append(args, opts.TenantID)
		where = append(where, fmt.Sprintf("tenant_id = $%d", len(args)))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	filter := strings.Join(where, " AND ")

	order := "DESC"
	if opts.SortOrder == "asc" {
		order = "ASC"
	}

	countQuery := "SELECT COUNT(*) FROM workflows WHERE " + filter
	listQuery := fmt.Sprintf("SELECT %s FROM workflows WHERE %s ORDER BY %s %s, id LIMIT $%d OFFSET $%d",
		workflowColumns, filter, sortColumns[opts.SortBy], order, len(args)+1, len(args)+2)

	return countQuery, listQuery, args, nil
}

// Published returns published workflows, restricted to tenantID when it is not empty.
func (r *WorkflowRepository) Published(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	query := "SELECT " + workflowColumns + ` FROM workflows
		WHERE deleted_at IS NULL AND status = $1 AND ($2 = '' OR tenant_id = $2)
		ORDER BY created_at`

	return r.query(ctx, query, string(models.WorkflowStatusPublished), tenantID)
}

func (r *WorkflowRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func(ctx context.Context, r *WorkflowRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	workflows := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err = r.loadNodesAndEdges(ctx, workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load nodes and edges of workflow %s: %w", workflow.ID, err)
		}
	}

	return workflows, nil
}

// GetByID returns a workflow with its nodes and edges.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := "SELECT " + workflowColumns + " FROM workflows WHERE id = $1 AND deleted_at IS NULL"

	workflow, err := r.scanWorkflowBase(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadNodesAndEdges(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes and edges of workflow %s: %w", id, err)
	}

	return workflow, nil
}

// Save upserts the workflow and replaces its nodes and edges in one transaction.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.WorkflowDefinition) error {
	metadata, err := marshalMap(workflow.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, tenant_id, name, description, status, metadata, created_at, updated_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			deleted_at = NULL
	`,
		workflow.ID,
		workflow.TenantID,
		workflow.Name,
		workflow.Description,
		string(workflow.Status),
		metadata,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	for _, table := range []string{"workflow_nodes", "workflow_edges"} {
		_, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE workflow_id = $1", workflow.ID)
		if err != nil {
			return fmt.Errorf("failed to clear %s of workflow %s: %w", table, workflow.ID, err)
		}
	}

	for i, node := range workflow.Nodes {
		config, err := models.EncodeNodeConfig(node.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal config of node %s: %w", node.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_nodes (workflow_id, id, node_type, name, config, position_x, position_y, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, workflow.ID, node.ID, string(node.Type), node.Name, []byte(config), node.PositionX, node.PositionY, i)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	for i, edge := range workflow.Edges {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_edges (workflow_id, id, source_node_id, target_node_id, branch_handle, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, workflow.ID, edge.ID, edge.SourceNodeID, edge.TargetNodeID, edge.BranchHandle, i)
		if err != nil {
			return fmt.Errorf("failed to save edge %s: %w", edge.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) scanWorkflowBase(row scanner) (*models.WorkflowDefinition, error) {
	var (
		workflow    models.WorkflowDefinition
		status      string
		metadata    []byte
		publishedAt sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.TenantID,
		&workflow.Name,
		&workflow.Description,
		&status,
		&metadata,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&publishedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.Status = models.WorkflowStatus(status)
	workflow.CreatedAt = workflow.CreatedAt.UTC()
	workflow.UpdatedAt = workflow.UpdatedAt.UTC()
	workflow.PublishedAt = nullTime(publishedAt)

	workflow.Metadata, err = unmarshalMap(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) loadNodesAndEdges(ctx context.Context, workflow *models.WorkflowDefinition) error {
	nodeRows, err := r.db.QueryContext(ctx, `
		SELECT id, node_type, name, config, position_x, position_y
		FROM workflow_nodes WHERE workflow_id = $1 ORDER BY sort_order
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query nodes: %w", err)
	}

	defer func() { _ = nodeRows.Close() }()

	workflow.Nodes = make([]*models.Node, 0)

	for nodeRows.Next() {
		var (
			node     models.Node
			nodeType string
			config   []byte
		)

		err = nodeRows.Scan(&node.ID, &nodeType, &node.Name, &config, &node.PositionX, &node.PositionY)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		node.Type = models.NodeType(nodeType)

		node.Config, err = models.DecodeNodeConfig(node.Type, config)
		if err != nil {
			return fmt.Errorf("failed to decode node %s: %w", node.ID, err)
		}

		workflow.Nodes = append(workflow.Nodes, &node)
	}

	err = nodeRows.Err()
	if err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	edgeRows, err := r.db.QueryContext(ctx, `
		SELECT id, source_node_id, target_node_id, branch_handle
		FROM workflow_edges WHERE workflow_id = $1 ORDER BY sort_order
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query edges: %w", err)
	}

	defer func() { _ = edgeRows.Close() }()

	workflow.Edges = make([]*models.Edge, 0)

	for edgeRows.Next() {
		var edge models.Edge

		err = edgeRows.Scan(&edge.ID, &edge.SourceNodeID, &edge.TargetNodeID, &edge.BranchHandle)
		if err != nil {
			return fmt.Errorf("failed to scan edge: %w", err)
		}

		workflow.Edges = append(workflow.Edges, &edge)
	}

	return edgeRows.Err()
}

// marshalMap encodes m for a JSONB column; a nil map is stored as NULL.
func marshalMap(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	return data, nil
}

func unmarshalMap(data []byte) (map[string]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var m map[string]any

	err := json.Unmarshal(data, &m)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	utc := t.Time.UTC()

	return &utc
}
