package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type Workflow struct {
	persistence persistence.Persistence
	clock       clockwork.Clock
	validate    *validator.Validate
	logger      *slog.Logger
}

// Option configures the definition services.
type Option func(*options)

type options struct {
	publisher eventbus.EventPublisher
	clock     clockwork.Clock
}

// WithPublisher publishes workflow.published and workflow.unpublished events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

// WithClock sets the clock used for timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, logger *slog.Logger, opts ...Option) *Workflow {
	o := buildOptions(opts)

	return &Workflow{
		persistence: persistence,
		clock:       o.clock,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int
	Offset int

	// Filtering
	TenantID string
	Status   *models.WorkflowStatus

	// Sorting
	SortBy    string
	SortOrder string
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.WorkflowDefinition `json:"workflows"`
	TotalCount  int64                        `json:"total_count"`
	HasNextPage bool                         `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := validateListWorkflowsRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	result, err := w.persistence.WorkflowRepository().ListWorkflows(ctx, persistence.ListWorkflowsOptions{
		TenantID:  req.TenantID,
		Status:    req.Status,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
	if err != nil {
		if persistence.IsInvalidSortField(err) {
			return nil, ErrInvalidSortField
		}

		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   result.Workflows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// validateListWorkflowsRequest validates and sets defaults for the request.
func validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = persistence.DefaultListLimit
	}

	if req.Limit > persistence.MaxListLimit {
		req.Limit = persistence.MaxListLimit
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "name"}

	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil {
		allowedStatuses := []models.WorkflowStatus{
			models.WorkflowStatusDraft,
			models.WorkflowStatusPublished,
			models.WorkflowStatusUnpublished,
		}

		if !slices.Contains(allowedStatuses, *req.Status) {
			return NewValidationError(
				"validateListWorkflowsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	req.TenantID = strings.TrimSpace(req.TenantID)

	return nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	definition, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return definition, nil
}

// Create stores a new draft workflow. Structural rules are checked here; graph
// rules are checked when the workflow is published.
func (w *Workflow) Create(ctx context.Context, definition *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if definition == nil {
		return nil, ErrWorkflowNil
	}

	now := w.clock.Now().UTC()
	definition.ID = uuid.New().String()
	definition.Status = models.WorkflowStatusDraft
	definition.CreatedAt = now
	definition.UpdatedAt = now
	definition.PublishedAt = nil

	if err := w.validateDefinition("Create", definition); err != nil {
		return nil, err
	}

	err := w.persistence.WorkflowRepository().Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow created", "workflow_id", definition.ID, "tenant_id", definition.TenantID)

	return definition, nil
}

// Update replaces the name, description, metadata and graph of a workflow
// that is not published.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	definition *models.WorkflowDefinition,
) (*models.WorkflowDefinition, error) {
	if definition == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.IsPublished() {
		return nil, ErrCannotModifyPublished
	}

	definition.ID = workflowID
	definition.Status = existing.Status
	definition.CreatedAt = existing.CreatedAt
	definition.PublishedAt = existing.PublishedAt
	definition.UpdatedAt = w.clock.Now().UTC()

	if definition.TenantID == "" {
		definition.TenantID = existing.TenantID
	}

	if err := w.validateDefinition("Update", definition); err != nil {
		return nil, err
	}

	err = w.persistence.WorkflowRepository().Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return definition, nil
}

// Delete removes a workflow by its ID. Suspended executions of a deleted
// workflow fail when they resume.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	_, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	err = w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", workflowID)

	return nil
}

func (w *Workflow) validateDefinition(op string, definition *models.WorkflowDefinition) error {
	err := w.validate.Struct(definition)
	if err != nil {
		return NewValidationError(op, "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	return nil
}
