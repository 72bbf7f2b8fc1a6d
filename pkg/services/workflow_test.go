package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/mocks"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/persistence/file"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

func draft(nodes []*models.Node, edges []*models.Edge) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		TenantID: "tenant-1",
		Name:     "Nurture",
		Nodes:    nodes,
		Edges:    edges,
	}
}

func TestWorkflow_Create(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	service := NewWorkflow(store, testLogger(), WithClock(clockwork.NewFakeClockAt(base)))

	definition := testutil.NurtureDefinition()
	definition.ID = "client-chosen"

	created, err := service.Create(t.Context(), definition)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.NotEqual(t, "client-chosen", created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Nil(t, created.PublishedAt)
	assert.Equal(t, base, created.CreatedAt)
	assert.Equal(t, base, created.UpdatedAt)

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Workflow", fetched.Name)
	assert.Len(t, fetched.Nodes, 6)
	assert.Len(t, fetched.Edges, 5)
}

func TestWorkflow_CreateValidation(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), testLogger())

	tests := []struct {
		name       string
		definition *models.WorkflowDefinition
		expected   error
	}{
		{name: "nil workflow", definition: nil, expected: ErrWorkflowNil},
		{name: "missing tenant", definition: &models.WorkflowDefinition{Name: "Nurture"}, expected: ErrInvalidRequest},
		{name: "short name", definition: &models.WorkflowDefinition{TenantID: "tenant-1", Name: "ab"}, expected: ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(t.Context(), tt.definition)
			require.ErrorIs(t, err, tt.expected)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestWorkflow_CreateAllowsIncompleteDraft(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), testLogger())

	created, err := service.Create(t.Context(), draft(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
}

func TestWorkflow_Update(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	store := file.NewPersistence(t.TempDir())
	service := NewWorkflow(store, testLogger(), WithClock(clock))

	created, err := service.Create(t.Context(), draft(nil, nil))
	require.NoError(t, err)

	clock.Advance(time.Hour)

	update := draft([]*models.Node{testutil.TriggerNode("trigger", models.TriggerEventManual)}, nil)
	update.Name = "Renamed"
	update.TenantID = ""
	update.Status = models.WorkflowStatusPublished

	updated, err := service.Update(t.Context(), created.ID, update)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "tenant-1", updated.TenantID)
	assert.Equal(t, models.WorkflowStatusDraft, updated.Status)
	assert.Equal(t, base, updated.CreatedAt)
	assert.Equal(t, base.Add(time.Hour), updated.UpdatedAt)
}

func TestWorkflow_UpdatePublishedIsConflict(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	definition := testutil.NurtureDefinition()
	require.NoError(t, store.WorkflowRepository().Save(t.Context(), definition))

	service := NewWorkflow(store, testLogger())

	_, err := service.Update(t.Context(), definition.ID, draft(nil, nil))
	require.ErrorIs(t, err, ErrCannotModifyPublished)
	assert.True(t, IsConflictError(err))
}

func TestWorkflow_UpdateMissing(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), testLogger())

	_, err := service.Update(t.Context(), "missing", draft(nil, nil))
	require.ErrorIs(t, err, ErrWorkflowNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestWorkflow_Delete(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), testLogger())

	created, err := service.Create(t.Context(), draft(nil, nil))
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), created.ID))

	_, err = service.FetchByID(t.Context(), created.ID)
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	err = service.Delete(t.Context(), created.ID)
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_ListWorkflows(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	store := file.NewPersistence(t.TempDir())
	service := NewWorkflow(store, testLogger(), WithClock(clock))

	for _, tenant := range []string{"tenant-1", "tenant-1", "tenant-2"} {
		definition := draft(nil, nil)
		definition.TenantID = tenant

		_, err := service.Create(t.Context(), definition)
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	result, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{TenantID: " tenant-1 ", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalCount)
	assert.True(t, result.HasNextPage)
	require.Len(t, result.Workflows, 1)
	assert.Equal(t, base.Add(time.Minute), result.Workflows[0].CreatedAt)

	status := models.WorkflowStatusPublished
	result, err = service.ListWorkflows(t.Context(), ListWorkflowsRequest{Status: &status})
	require.NoError(t, err)
	assert.Empty(t, result.Workflows)
}

func TestWorkflow_ListWorkflowsValidation(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), testLogger())
	invalid := models.WorkflowStatus("archived")

	tests := []struct {
		name     string
		req      ListWorkflowsRequest
		expected error
	}{
		{name: "sort field", req: ListWorkflowsRequest{SortBy: "owner"}, expected: ErrInvalidSortField},
		{name: "sort order", req: ListWorkflowsRequest{SortOrder: "sideways"}, expected: ErrInvalidSortOrder},
		{name: "status", req: ListWorkflowsRequest{Status: &invalid}, expected: ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ListWorkflows(t.Context(), tt.req)
			require.ErrorIs(t, err, tt.expected)
			assert.True(t, IsValidationError(err))

			var serviceErr *ServiceError
			require.ErrorAs(t, err, &serviceErr)
			assert.NotEmpty(t, serviceErr.Code)
		})
	}
}

func TestWorkflow_ListWorkflowsDefaults(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.GetMockWorkflowRepository().
		On("ListWorkflows", mock.Anything, persistence.ListWorkflowsOptions{
			SortBy: "created_at", SortOrder: "desc", Limit: persistence.MaxListLimit,
		}).
		Return(&persistence.WorkflowListResult{}, nil).Once()

	service := NewWorkflow(store, testLogger())

	_, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{Limit: 500, Offset: -3})
	require.NoError(t, err)
	store.GetMockWorkflowRepository().AssertExpectations(t)
}

func TestWorkflow_ListWorkflowsStorageError(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.GetMockWorkflowRepository().
		On("ListWorkflows", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset")).Once()

	service := NewWorkflow(store, testLogger())

	_, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{})
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWorkflow_HealthCheck(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.On("HealthCheck", mock.Anything).Return(nil).Once()
	store.On("HealthCheck", mock.Anything).Return(errors.New("down")).Once()

	service := NewWorkflow(store, testLogger())

	message, healthy := service.HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.Equal(t, "Persistence layer is healthy", message)

	message, healthy = service.HealthCheck(t.Context())
	assert.False(t, healthy)
	assert.Contains(t, message, "down")

	_, healthy = (&Workflow{}).HealthCheck(t.Context())
	assert.False(t, healthy)
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(NewValidationError("op", "CODE", "message", ErrInvalidDefinition)))
	assert.False(t, IsValidationError(ErrCannotModifyPublished))
	assert.True(t, IsConflictError(ErrWorkflowNotPublished))
	assert.False(t, IsConflictError(errors.New("boom")))
	assert.Equal(t, "op: message", NewValidationError("op", "CODE", "message", nil).Error())
	assert.Equal(t, "op: invalid request", NewValidationError("op", "CODE", "", ErrInvalidRequest).Error())
	assert.True(t, IsNotFoundError(persistence.NewExecutionError("GetByID", "e", persistence.ErrExecutionNotFound)))
}
