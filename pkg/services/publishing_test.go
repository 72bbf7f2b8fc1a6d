package services

import (
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/graph"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/persistence/file"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPublishing(t *testing.T) (*Publishing, persistence.Persistence, *recordingPublisher, *clockwork.FakeClock) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	recorder := &recordingPublisher{}
	clock := clockwork.NewFakeClockAt(base)

	return NewPublishing(store, testLogger(), WithPublisher(recorder), WithClock(clock)), store, recorder, clock
}

func saveDraft(t *testing.T, store persistence.Persistence, definition *models.WorkflowDefinition) *models.WorkflowDefinition {
	t.Helper()

	require.NoError(t, store.WorkflowRepository().Save(t.Context(), definition))

	return definition
}

func TestPublishing_PublishWorkflow(t *testing.T) {
	service, store, recorder, clock := newPublishing(t)
	definition := saveDraft(t, store, testutil.NurtureDefinition(testutil.WithStatus(models.WorkflowStatusDraft)))

	clock.Advance(time.Minute)

	published, err := service.PublishWorkflow(t.Context(), definition.ID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
	assert.Equal(t, base.Add(time.Minute), *published.PublishedAt)

	stored, err := store.WorkflowRepository().GetByID(t.Context(), definition.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPublished())

	require.Len(t, recorder.events, 1)
	event, ok := recorder.events[0].(events.WorkflowPublished)
	require.True(t, ok)
	assert.Equal(t, definition.ID, event.WorkflowID)
	assert.Equal(t, "tenant-1", event.TenantID)
	assert.Equal(t, "Test Workflow", event.Name)
}

func TestPublishing_PublishWorkflowIsIdempotent(t *testing.T) {
	service, store, recorder, _ := newPublishing(t)
	definition := saveDraft(t, store, testutil.NurtureDefinition())

	published, err := service.PublishWorkflow(t.Context(), definition.ID)
	require.NoError(t, err)
	assert.Equal(t, definition.PublishedAt.Unix(), published.PublishedAt.Unix())
	assert.Empty(t, recorder.events)
}

func TestPublishing_PublishWorkflowRejectsInvalidGraph(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []*models.Node
		edges    []*models.Edge
		expected error
	}{
		{
			name:     "no trigger",
			nodes:    []*models.Node{testutil.StaticMessageNode("welcome", "Welcome")},
			expected: graph.ErrNoTrigger,
		},
		{
			name: "two triggers",
			nodes: []*models.Node{
				testutil.TriggerNode("a", models.TriggerEventManual),
				testutil.TriggerNode("b", models.TriggerEventManual),
			},
			expected: graph.ErrMultipleTriggers,
		},
		{
			name:     "dangling edge",
			nodes:    []*models.Node{testutil.TriggerNode("trigger", models.TriggerEventManual)},
			edges:    []*models.Edge{testutil.Edge("trigger", "ghost")},
			expected: graph.ErrUnknownNodeReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, store, recorder, _ := newPublishing(t)
			definition := saveDraft(t, store, testutil.CreateTestDefinition(tt.nodes, tt.edges, testutil.WithStatus(models.WorkflowStatusDraft)))

			_, err := service.PublishWorkflow(t.Context(), definition.ID)
			require.ErrorIs(t, err, ErrInvalidDefinition)
			require.ErrorIs(t, err, tt.expected)
			assert.True(t, IsValidationError(err))

			stored, err := store.WorkflowRepository().GetByID(t.Context(), definition.ID)
			require.NoError(t, err)
			assert.Equal(t, models.WorkflowStatusDraft, stored.Status)
			assert.Empty(t, recorder.events)
		})
	}
}

func TestPublishing_PublishWorkflowAllowsUnreachableNodes(t *testing.T) {
	service, store, _, _ := newPublishing(t)
	definition := saveDraft(t, store, testutil.CreateTestDefinition(
		[]*models.Node{
			testutil.TriggerNode("trigger", models.TriggerEventManual),
			testutil.StaticMessageNode("orphan", "Never sent"),
		},
		nil,
		testutil.WithStatus(models.WorkflowStatusDraft),
	))

	published, err := service.PublishWorkflow(t.Context(), definition.ID)
	require.NoError(t, err)
	assert.True(t, published.IsPublished())
}

func TestPublishing_UnpublishWorkflow(t *testing.T) {
	service, store, recorder, _ := newPublishing(t)
	definition := saveDraft(t, store, testutil.NurtureDefinition())

	unpublished, err := service.UnpublishWorkflow(t.Context(), definition.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusUnpublished, unpublished.Status)

	require.Len(t, recorder.events, 1)
	assert.Equal(t, events.WorkflowUnpublishedEvent, recorder.events[0].GetType())

	_, err = service.UnpublishWorkflow(t.Context(), definition.ID)
	require.ErrorIs(t, err, ErrWorkflowNotPublished)
	assert.True(t, IsConflictError(err))

	republished, err := service.PublishWorkflow(t.Context(), definition.ID)
	require.NoError(t, err)
	assert.True(t, republished.IsPublished())
}

func TestPublishing_MissingWorkflow(t *testing.T) {
	service, _, _, _ := newPublishing(t)

	_, err := service.PublishWorkflow(t.Context(), "missing")
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = service.UnpublishWorkflow(t.Context(), "missing")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}
