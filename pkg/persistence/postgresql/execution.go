package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/lib/pq"
)

const executionColumns = `
	id
  , workflow_id
  , tenant_id
  , subject_id
  , channel_id
  , current_node_id
  , status
  , scheduled_for
  , context_data
  , claim_token
  , claim_expires_at
  , error
  , steps
  , created_at
  , updated_at
  , completed_at
`

// dueCondition selects executions a scheduler may claim at $1.
const dueCondition = `((status = 'pending' AND scheduled_for <= $1) OR (status = 'running' AND claim_expires_at < $1))`

const uniqueViolation = "23505"

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a new execution.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	contextData, err := marshalMap(execution.ContextData)
	if err != nil {
		return fmt.Errorf("failed to marshal context data: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		execution.ID,
		execution.WorkflowID,
		execution.TenantID,
		execution.SubjectID,
		execution.ChannelID,
		execution.CurrentNodeID,
		string(execution.Status),
		execution.ScheduledFor,
		contextData,
		execution.ClaimToken,
		execution.ClaimExpiresAt,
		execution.Error,
		execution.Steps,
		execution.CreatedAt,
		execution.UpdatedAt,
		execution.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
		}

		return fmt.Errorf("failed to create execution %s: %w", execution.ID, err)
	}

	return nil
}

// GetByID retrieves an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+executionColumns+" FROM executions WHERE id = $1", id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// Save overwrites the mutable fields when token still owns the execution.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution, token string) error {
	contextData, err := marshalMap(execution.ContextData)
	if err != nil {
		return fmt.Errorf("failed to marshal context data: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE executions SET
			current_node_id = $2,
			status = $3,
			scheduled_for = $4,
			context_data = $5,
			claim_token = $6,
			claim_expires_at = $7,
			error = $8,
			steps = $9,
			updated_at = $10,
			completed_at = $11
		WHERE id = $1 AND status = 'running' AND claim_token = $12 AND $12 <> ''
	`,
		execution.ID,
		execution.CurrentNodeID,
		string(execution.Status),
		execution.ScheduledFor,
		contextData,
		execution.ClaimToken,
		execution.ClaimExpiresAt,
		execution.Error,
		execution.Steps,
		execution.UpdatedAt,
		execution.CompletedAt,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
	}

	return r.checkOwned(ctx, "Save", execution.ID, result)
}

// Fail marks the execution failed when token still owns it.
func (r *ExecutionRepository) Fail(ctx context.Context, id, token, reason string, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE executions SET
			status = 'failed',
			error = $3,
			claim_token = '',
			claim_expires_at = NULL,
			scheduled_for = NULL,
			updated_at = $4,
			completed_at = $4
		WHERE id = $1 AND status = 'running' AND claim_token = $2 AND $2 <> ''
	`, id, token, reason, now)
	if err != nil {
		return fmt.Errorf("failed to mark execution %s as failed: %w", id, err)
	}

	return r.checkOwned(ctx, "Fail", id, result)
}

// checkOwned turns a conditional update that touched no row into the right error.
func (r *ExecutionRepository) checkOwned(ctx context.Context, op, id string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected > 0 {
		return nil
	}

	err = r.exists(ctx, op, id)
	if err != nil {
		return err
	}

	return persistence.NewExecutionError(op, id, persistence.ErrClaimLost)
}

func (r *ExecutionRepository) exists(ctx context.Context, op, id string) error {
	var exists bool

	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check execution %s: %w", id, err)
	}

	if !exists {
		return persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
	}

	return nil
}

// Claim atomically takes ownership of a due execution. The conditional UPDATE
// is evaluated under the row lock, so concurrent claimants see a single winner.
func (r *ExecutionRepository) Claim(ctx context.Context, id string, claim models.Claim) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE executions SET
			status = 'running',
			claim_token = $2,
			claim_expires_at = $3,
			updated_at = $1
		WHERE id = $4 AND `+dueCondition+`
		RETURNING `+executionColumns,
		claim.Now, claim.Token, claim.ExpiresAt, id,
	)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existsErr := r.exists(ctx, "Claim", id)
			if existsErr != nil {
				return nil, existsErr
			}

			return nil, persistence.NewExecutionError("Claim", id, persistence.ErrClaimConflict)
		}

		return nil, fmt.Errorf("failed to claim execution %s: %w", id, err)
	}

	return execution, nil
}

// Due lists claimable executions, oldest due time first.
func (r *ExecutionRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	return r.query(ctx, `
		SELECT `+executionColumns+` FROM executions
		WHERE `+dueCondition+`
		ORDER BY CASE WHEN status = 'running' THEN claim_expires_at ELSE scheduled_for END, created_at
		LIMIT $2
	`, now, limit)
}

// ListByWorkflow returns the executions of a workflow, newest first.
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return r.query(ctx, "SELECT "+executionColumns+" FROM executions WHERE workflow_id = $1 ORDER BY created_at DESC", workflowID)
}

// ListBySubject returns the executions of a subject, newest first.
func (r *ExecutionRepository) ListBySubject(ctx context.Context, subjectID string) ([]*models.Execution, error) {
	return r.query(ctx, "SELECT "+executionColumns+" FROM executions WHERE subject_id = $1 ORDER BY created_at DESC", subjectID)
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution      models.Execution
		status         string
		scheduledFor   sql.NullTime
		contextData    []byte
		claimExpiresAt sql.NullTime
		completedAt    sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.TenantID,
		&execution.SubjectID,
		&execution.ChannelID,
		&execution.CurrentNodeID,
		&status,
		&scheduledFor,
		&contextData,
		&execution.ClaimToken,
		&claimExpiresAt,
		&execution.Error,
		&execution.Steps,
		&execution.CreatedAt,
		&execution.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)
	execution.ScheduledFor = nullTime(scheduledFor)
	execution.ClaimExpiresAt = nullTime(claimExpiresAt)
	execution.CompletedAt = nullTime(completedAt)
	execution.CreatedAt = execution.CreatedAt.UTC()
	execution.UpdatedAt = execution.UpdatedAt.UTC()

	execution.ContextData, err = unmarshalMap(contextData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal context data: %w", err)
	}

	return &execution, nil
}
