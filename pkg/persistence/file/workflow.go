package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	root string // File system root for storing workflows
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) dir() string {
	return filepath.Join(wr.root, "workflows")
}

// ListWorkflows returns paginated and filtered workflows with in-memory operations.
func (wr *WorkflowRepository) ListWorkflows(_ context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	definitions, err := readJSONDir[models.WorkflowDefinition](wr.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	return persistence.Paginate(definitions, opts), nil
}

// Published returns every published workflow, optionally restricted to one tenant.
func (wr *WorkflowRepository) Published(_ context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	definitions, err := readJSONDir[models.WorkflowDefinition](wr.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	published := make([]*models.WorkflowDefinition, 0, len(definitions))

	for _, definition := range definitions {
		if definition.IsPublished() && (tenantID == "" || definition.TenantID == tenantID) {
			published = append(published, definition)
		}
	}

	return published, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	err := validateID(workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
	}

	body, err := os.ReadFile(filepath.Join(wr.dir(), workflowID+".json")) // #nosec G304 -- workflowID is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	var definition models.WorkflowDefinition

	err = json.Unmarshal(body, &definition)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", workflowID, err)
	}

	return &definition, nil
}

// Save saves a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, definition *models.WorkflowDefinition) error {
	err := validateID(definition.ID)
	if err != nil {
		return fmt.Errorf("invalid workflow ID: %w", err)
	}

	err = writeJSON(filepath.Join(wr.dir(), definition.ID+".json"), definition)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", definition.ID, err)
	}

	return nil
}

// Delete removes a workflow by its ID.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	err := validateID(id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	err = os.Remove(filepath.Join(wr.dir(), id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
		}

		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}
