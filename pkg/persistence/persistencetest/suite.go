// Package persistencetest holds the behavior every persistence backend must share.
package persistencetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend.
type Factory func(t *testing.T) persistence.Persistence

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Run executes the whole suite against the backend produced by newPersistence.
func Run(t *testing.T, newPersistence Factory) {
	t.Helper()

	t.Run("workflows", func(t *testing.T) { RunWorkflows(t, newPersistence) })
	t.Run("executions", func(t *testing.T) { RunExecutions(t, newPersistence) })
}

// RunWorkflows covers WorkflowRepository.
func RunWorkflows(t *testing.T, newPersistence Factory) {
	t.Helper()

	ctx := context.Background()

	t.Run("save and get round trip typed nodes", func(t *testing.T) {
		repo := newPersistence(t).WorkflowRepository()
		definition := testutil.NurtureDefinition()

		require.NoError(t, repo.Save(ctx, definition))

		loaded, err := repo.GetByID(ctx, definition.ID)
		require.NoError(t, err)
		assert.Equal(t, definition.Name, loaded.Name)
		assert.Equal(t, definition.TenantID, loaded.TenantID)
		require.Len(t, loaded.Nodes, len(definition.Nodes))
		require.Len(t, loaded.Edges, len(definition.Edges))

		var wait *models.WaitConfig

		for _, node := range loaded.Nodes {
			if cfg, ok := node.Config.(*models.WaitConfig); ok {
				wait = cfg
			}
		}

		require.NotNil(t, wait)
		assert.Equal(t, 24*time.Hour, wait.Duration())
	})

	t.Run("missing workflow", func(t *testing.T) {
		repo := newPersistence(t).WorkflowRepository()

		_, err := repo.GetByID(ctx, uuid.NewString())
		require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

		err = repo.Delete(ctx, uuid.NewString())
		require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
	})

	t.Run("update overwrites", func(t *testing.T) {
		repo := newPersistence(t).WorkflowRepository()
		definition := testutil.NurtureDefinition(testutil.WithStatus(models.WorkflowStatusDraft))
		require.NoError(t, repo.Save(ctx, definition))

		definition.Name = "Renamed"
		definition.Nodes = definition.Nodes[:2]
		definition.Edges = definition.Edges[:1]
		require.NoError(t, repo.Save(ctx, definition))

		loaded, err := repo.GetByID(ctx, definition.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", loaded.Name)
		assert.Len(t, loaded.Nodes, 2)
		assert.Len(t, loaded.Edges, 1)
	})

	t.Run("published and list", func(t *testing.T) {
		repo := newPersistence(t).WorkflowRepository()

		draft := testutil.NurtureDefinition(testutil.WithStatus(models.WorkflowStatusDraft))
		published := testutil.NurtureDefinition()
		otherTenant := testutil.NurtureDefinition(func(d *models.WorkflowDefinition) { d.TenantID = "tenant-2" })

		for i, definition := range []*models.WorkflowDefinition{draft, published, otherTenant} {
			definition.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, repo.Save(ctx, definition))
		}

		all, err := repo.Published(ctx, "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{published.ID, otherTenant.ID}, ids(all))

		tenant, err := repo.Published(ctx, "tenant-1")
		require.NoError(t, err)
		assert.Equal(t, []string{published.ID}, ids(tenant))

		page, err := repo.ListWorkflows(ctx, persistence.ListWorkflowsOptions{TenantID: "tenant-1", Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.TotalCount)
		assert.True(t, page.HasNextPage)
		assert.Equal(t, []string{published.ID}, ids(page.Workflows))

		_, err = repo.ListWorkflows(ctx, persistence.ListWorkflowsOptions{SortBy: "owner"})
		require.ErrorIs(t, err, persistence.ErrInvalidSortField)

		require.NoError(t, repo.Delete(ctx, published.ID))

		_, err = repo.GetByID(ctx, published.ID)
		require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
	})
}

// RunExecutions covers ExecutionRepository, including the claim protocol.
func RunExecutions(t *testing.T, newPersistence Factory) {
	t.Helper()

	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newPersistence(t).ExecutionRepository()
		execution := pendingExecution("wf-1", "lead-1", base)
		execution.ContextData = map[string]any{"source": "ads", "score": 7.5}

		require.NoError(t, repo.Create(ctx, execution))
		require.ErrorIs(t, repo.Create(ctx, execution), persistence.ErrExecutionAlreadyExists)

		loaded, err := repo.GetByID(ctx, execution.ID)
		require.NoError(t, err)
		assert.Equal(t, execution.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, models.ExecutionStatusPending, loaded.Status)
		assert.Equal(t, "ads", loaded.ContextData["source"])
		require.NotNil(t, loaded.ScheduledFor)
		assert.True(t, execution.ScheduledFor.Equal(*loaded.ScheduledFor))

		_, err = repo.GetByID(ctx, uuid.NewString())
		require.ErrorIs(t, err, persistence.ErrExecutionNotFound)
	})

	t.Run("claim is exclusive", func(t *testing.T) {
		repo := newPersistence(t).ExecutionRepository()
		execution := pendingExecution("wf-1", "lead-1", base)
		require.NoError(t, repo.Create(ctx, execution))

		claimed, err := repo.Claim(ctx, execution.ID, claimAt(base.Add(time.Second)))
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusRunning, claimed.Status)
		assert.NotEmpty(t, claimed.ClaimToken)

		_, err = repo.Claim(ctx, execution.ID, claimAt(base.Add(2*time.Second)))
		require.ErrorIs(t, err, persistence.ErrClaimConflict)
	})

	t.Run("not yet due cannot be claimed", func(t *testing.T) {
		repo := newPersistence(t).ExecutionRepository()
		execution := pendingExecution("wf-1", "lead-1", base.Add(time.Hour))
		require.NoError(t, repo.Create(ctx, execution))

		_, err := repo.Claim(ctx, execution.ID, claimAt(base))
		require.ErrorIs(t, err, persistence.ErrClaimConflict)

		_, err = repo.Claim(ctx, uuid.NewString(), claimAt(base))
		require.Error(t, err)
	})

	t.Run("concurrent claims have a single winner", func(t *testing.T) {
		repo := newPersistence(t).ExecutionRepository()
		execution := pendingExecution("wf-1", "lead-1", base)
		require.NoError(t, repo.Create(ctx, execution))

		var (
			wg      sync.WaitGroup
			winners atomic.Int32
		)

		for range 8 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, err := repo.Claim(ctx, execution.ID, claimAt(base.Add(time.Second)))
				if err == nil {
					winners.Add(1)
				}
			}()
		}

		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
	})

	t.Run("save requires the claim token", func(t *testing.T) {
		repo := newPersistence(t).ExecutionRepository()
		execution := pendingExecution("wf-1", "lead-1", base)
		require.NoError(t, repo.Create(ctx, execution))

		claimed, err := repo.Claim(ctx, execution.ID, claimAt(base))
		require.NoError(t, err)

		claimed.CurrentNodeID = "welcome"
		claimed.Steps = 2
		require.ErrorIs(t, repo.Save(ctx, claimed, "someone-else"), persistence.ErrClaimLost)
		require.NoError(t, repo.Save(ctx, claimed, claimed.ClaimToken))

		token := claimed.ClaimToken
		resumeAt := base.Add(24 * time.Hour)
		claimed.CurrentNodeID = "replied"
		claimed.Status = models.ExecutionStatusPending
		claimed.ScheduledFor = &resumeAt
		claimed.ClaimToken = ""
		claimed.ClaimExpiresAt = nil
		require.NoError(t, repo.Save(ctx, claimed, token))

		loaded, err := repo.GetByID(ctx, execution.ID)
		require.NoError(t, err)
		assert.Equal(t, "replied", loaded.CurrentNodeID)
		assert.Equal(t, 2, loaded.Steps)
		assert.Equal(t, models.ExecutionStatusPending, loaded.Status)
		assert.Empty(t, loaded.ClaimToken)

		// The released token cannot write again.
		require.ErrorIs(t, repo.Save(ctx, claimed, token), persistence.ErrClaimLost)
	})

	t.Run("expired lease is reclaimed and the old owner loses", func(t *testing.T) {
		repo := newPersistence(t).ExecutionRepository()
		execution := pendingExecution("wf-1", "lead-1", base)
		require.NoError(t, repo.Create(ctx, execution))

		first, err := repo.Claim(ctx, execution.ID, claimAt(base))
		require.NoError(t, err)

		_, err = repo.Claim(ctx, execution.ID, claimAt(base.Add(time.Minute)))
		require.ErrorIs(t, err, persistence.ErrClaimConflict)

		second, err := repo.Claim(ctx, execution.ID, claimAt(base.Add(10*time.Minute)))
		require.NoError(t, err)
		assert.NotEqual(t, first.ClaimToken, second.ClaimToken)

		require.ErrorIs(t, repo.Save(ctx, first, first.ClaimToken), persistence.ErrClaimLost)
		require.ErrorIs(t, repo.Fail(ctx, execution.ID, first.ClaimToken, "late", base), persistence.ErrClaimLost)
	})

	t.Run("fail", func(t *testing.T) {
		repo := newPersistence(t).ExecutionRepository()
		execution := pendingExecution("wf-1", "lead-1", base)
		require.NoError(t, repo.Create(ctx, execution))

		claimed, err := repo.Claim(ctx, execution.ID, claimAt(base))
		require.NoError(t, err)
		require.NoError(t, repo.Fail(ctx, execution.ID, claimed.ClaimToken, "workflow deleted", base.Add(time.Second)))

		loaded, err := repo.GetByID(ctx, execution.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusFailed, loaded.Status)
		assert.Equal(t, "workflow deleted", loaded.Error)
		assert.NotNil(t, loaded.CompletedAt)
		assert.Empty(t, loaded.ClaimToken)

		_, err = repo.Claim(ctx, execution.ID, claimAt(base.Add(time.Hour)))
		require.ErrorIs(t, err, persistence.ErrClaimConflict)
	})

	t.Run("due and listings", func(t *testing.T) {
		repo := newPersistence(t).ExecutionRepository()

		late := pendingExecution("wf-1", "lead-1", base.Add(-time.Hour))
		early := pendingExecution("wf-1", "lead-2", base.Add(-2*time.Hour))
		future := pendingExecution("wf-2", "lead-1", base.Add(time.Hour))
		done := pendingExecution("wf-2", "lead-3", base.Add(-time.Hour))
		done.Status = models.ExecutionStatusCompleted

		for i, execution := range []*models.Execution{late, early, future, done} {
			execution.CreatedAt = base.Add(time.Duration(i) * time.Second)
			require.NoError(t, repo.Create(ctx, execution))
		}

		due, err := repo.Due(ctx, base, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{early.ID, late.ID}, executionIDs(due))

		limited, err := repo.Due(ctx, base, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{early.ID}, executionIDs(limited))

		byWorkflow, err := repo.ListByWorkflow(ctx, "wf-2")
		require.NoError(t, err)
		assert.Equal(t, []string{done.ID, future.ID}, executionIDs(byWorkflow))

		bySubject, err := repo.ListBySubject(ctx, "lead-1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{late.ID, future.ID}, executionIDs(bySubject))

		empty, err := repo.ListByWorkflow(ctx, "wf-unknown")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func pendingExecution(workflowID, subjectID string, scheduledFor time.Time) *models.Execution {
	return &models.Execution{
		ID:            uuid.NewString(),
		WorkflowID:    workflowID,
		TenantID:      "tenant-1",
		SubjectID:     subjectID,
		ChannelID:     "channel-" + subjectID,
		CurrentNodeID: "trigger",
		Status:        models.ExecutionStatusPending,
		ScheduledFor:  &scheduledFor,
		CreatedAt:     base,
		UpdatedAt:     base,
	}
}

func claimAt(now time.Time) models.Claim {
	return models.Claim{Token: uuid.NewString(), Now: now, ExpiresAt: now.Add(5 * time.Minute)}
}

func ids(definitions []*models.WorkflowDefinition) []string {
	result := make([]string, 0, len(definitions))
	for _, definition := range definitions {
		result = append(result, definition.ID)
	}

	return result
}

func executionIDs(executions []*models.Execution) []string {
	result := make([]string, 0, len(executions))
	for _, execution := range executions {
		result = append(result, execution.ID)
	}

	return result
}
