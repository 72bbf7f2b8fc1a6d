// Package persistence provides the storage abstraction for workflow definitions and executions.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/leadflow/pkg/models"
)

// Persistence groups the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters and paginates workflow listings.
type ListWorkflowsOptions struct {
	TenantID  string
	Status    *models.WorkflowStatus
	SortBy    string // created_at, updated_at or name
	SortOrder string // asc or desc
	Limit     int
	Offset    int
}

// WorkflowListResult is one page of workflows.
type WorkflowListResult struct {
	Workflows   []*models.WorkflowDefinition `json:"workflows"`
	TotalCount  int64                        `json:"total_count"`
	HasNextPage bool                         `json:"has_next_page"`
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)

	// GetByID returns ErrWorkflowNotFound when the definition does not exist.
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)

	// Published lists published definitions, restricted to tenantID when it is not empty.
	Published(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error)

	Save(ctx context.Context, definition *models.WorkflowDefinition) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution rows. Every write after creation is
// conditional on the claim token so that only the current claimant can advance
// an execution.
type ExecutionRepository interface {
	// Create inserts a new execution. It returns ErrExecutionAlreadyExists on id collision.
	Create(ctx context.Context, execution *models.Execution) error

	// GetByID returns ErrExecutionNotFound when the execution does not exist.
	GetByID(ctx context.Context, id string) (*models.Execution, error)

	// Save overwrites the mutable fields of execution when the stored claim token
	// equals token. It returns ErrClaimLost otherwise.
	Save(ctx context.Context, execution *models.Execution, token string) error

	// Fail marks the execution failed with reason when the stored claim token equals token.
	Fail(ctx context.Context, id, token, reason string, now time.Time) error

	// Claim atomically takes ownership of a due execution (see models.Execution.IsDue).
	// It returns ErrClaimConflict when the execution is not due or already claimed.
	Claim(ctx context.Context, id string, claim models.Claim) (*models.Execution, error)

	// Due lists up to limit executions that can be claimed at now, oldest due first.
	Due(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error)

	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*models.Execution, error)
}
