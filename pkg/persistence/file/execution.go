package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

// ExecutionRepository handles execution-related file operations. Conditional
// writes are serialized by a mutex, so claims are only atomic within one process.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) dir() string {
	return filepath.Join(er.root, "executions")
}

func (er *ExecutionRepository) path(id string) string {
	return filepath.Join(er.dir(), id+".json")
}

func (er *ExecutionRepository) read(op, id string) (*models.Execution, error) {
	err := validateID(id)
	if err != nil {
		return nil, persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
	}

	body, err := os.ReadFile(er.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var execution models.Execution

	err = json.Unmarshal(body, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

func (er *ExecutionRepository) write(execution *models.Execution) error {
	err := writeJSON(er.path(execution.ID), execution)
	if err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.ID, err)
	}

	return nil
}

// owned loads the execution and checks that token still holds its claim.
func (er *ExecutionRepository) owned(op, id, token string) (*models.Execution, error) {
	stored, err := er.read(op, id)
	if err != nil {
		return nil, err
	}

	if token == "" || stored.Status != models.ExecutionStatusRunning || stored.ClaimToken != token {
		return nil, persistence.NewExecutionError(op, id, persistence.ErrClaimLost)
	}

	return stored, nil
}

// Create stores a new execution.
func (er *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	err := validateID(execution.ID)
	if err != nil {
		return fmt.Errorf("invalid execution ID: %w", err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	if _, err := os.Stat(er.path(execution.ID)); err == nil {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	return er.write(execution)
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	return er.read("GetByID", id)
}

// Save overwrites the execution if token still owns it.
func (er *ExecutionRepository) Save(_ context.Context, execution *models.Execution, token string) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	_, err := er.owned("Save", execution.ID, token)
	if err != nil {
		return err
	}

	return er.write(execution)
}

// Fail marks the execution failed if token still owns it.
func (er *ExecutionRepository) Fail(_ context.Context, id, token, reason string, now time.Time) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	stored, err := er.owned("Fail", id, token)
	if err != nil {
		return err
	}

	stored.Status = models.ExecutionStatusFailed
	stored.Error = reason
	stored.ClaimToken = ""
	stored.ClaimExpiresAt = nil
	stored.ScheduledFor = nil
	stored.UpdatedAt = now
	stored.CompletedAt = &now

	return er.write(stored)
}

// Claim takes ownership of a due execution.
func (er *ExecutionRepository) Claim(_ context.Context, id string, claim models.Claim) (*models.Execution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	stored, err := er.read("Claim", id)
	if err != nil {
		return nil, err
	}

	if !stored.IsDue(claim.Now) {
		return nil, persistence.NewExecutionError("Claim", id, persistence.ErrClaimConflict)
	}

	expiresAt := claim.ExpiresAt
	stored.Status = models.ExecutionStatusRunning
	stored.ClaimToken = claim.Token
	stored.ClaimExpiresAt = &expiresAt
	stored.UpdatedAt = claim.Now

	err = er.write(stored)
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// Due lists claimable executions, oldest due time first.
func (er *ExecutionRepository) Due(_ context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	all, err := er.all()
	if err != nil {
		return nil, err
	}

	due := make([]*models.Execution, 0)

	for _, execution := range all {
		if execution.IsDue(now) {
			due = append(due, execution)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return dueAt(due[i]).Before(dueAt(due[j]))
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

// ListByWorkflow returns the executions of a workflow, newest first.
func (er *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	return er.filter(func(execution *models.Execution) bool {
		return execution.WorkflowID == workflowID
	})
}

// ListBySubject returns the executions of a subject, newest first.
func (er *ExecutionRepository) ListBySubject(_ context.Context, subjectID string) ([]*models.Execution, error) {
	return er.filter(func(execution *models.Execution) bool {
		return execution.SubjectID == subjectID
	})
}

func (er *ExecutionRepository) filter(keep func(*models.Execution) bool) ([]*models.Execution, error) {
	all, err := er.all()
	if err != nil {
		return nil, err
	}

	executions := make([]*models.Execution, 0)

	for _, execution := range all {
		if keep(execution) {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	return executions, nil
}

func (er *ExecutionRepository) all() ([]*models.Execution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	executions, err := readJSONDir[models.Execution](er.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

func dueAt(execution *models.Execution) time.Time {
	if execution.Status == models.ExecutionStatusRunning && execution.ClaimExpiresAt != nil {
		return *execution.ClaimExpiresAt
	}

	if execution.ScheduledFor != nil {
		return *execution.ScheduledFor
	}

	return execution.CreatedAt
}
