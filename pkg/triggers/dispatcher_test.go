package triggers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/leadflow/pkg/channels/gochannel"
	"github.com/dukex/leadflow/pkg/engine"
	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/mocks"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/persistence/file"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/dukex/leadflow/pkg/triggers"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStarter struct {
	mu       sync.Mutex
	requests []engine.StartRequest
	failFor  string
}

func (f *fakeStarter) StartExecution(_ context.Context, req engine.StartRequest) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)

	if req.WorkflowID == f.failFor {
		return nil, errors.New("boom")
	}

	return &models.Execution{ID: "exec-" + req.WorkflowID, WorkflowID: req.WorkflowID, SubjectID: req.SubjectID}, nil
}

func (f *fakeStarter) Requests() []engine.StartRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]engine.StartRequest(nil), f.requests...)
}

func triggerDefinition(id string, config *models.TriggerConfig, overrides ...func(*models.WorkflowDefinition)) *models.WorkflowDefinition {
	trigger := &models.Node{ID: "trigger", Type: models.NodeTypeTrigger, Config: config}

	overrides = append([]func(*models.WorkflowDefinition){testutil.WithID(id)}, overrides...)

	return testutil.CreateTestDefinition(
		[]*models.Node{trigger, testutil.WaitNode("wait", 1, models.WaitUnitDays)},
		[]*models.Edge{testutil.Edge("trigger", "wait")},
		overrides...,
	)
}

func seed(t *testing.T, store persistence.Persistence, definitions ...*models.WorkflowDefinition) {
	t.Helper()

	for _, definition := range definitions {
		require.NoError(t, store.WorkflowRepository().Save(t.Context(), definition))
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	seed(t, store,
		triggerDefinition("any-stage", &models.TriggerConfig{Event: models.TriggerEventStageChanged}),
		triggerDefinition("qualified", &models.TriggerConfig{Event: models.TriggerEventStageChanged, Stage: "qualified"}),
		triggerDefinition("lost", &models.TriggerConfig{Event: models.TriggerEventStageChanged, Stage: "lost"}),
		triggerDefinition("purchase", &models.TriggerConfig{Event: models.TriggerEventPurchase}),
		triggerDefinition("draft", &models.TriggerConfig{Event: models.TriggerEventStageChanged},
			testutil.WithStatus(models.WorkflowStatusDraft)),
		triggerDefinition("other-tenant", &models.TriggerConfig{Event: models.TriggerEventStageChanged},
			func(d *models.WorkflowDefinition) { d.TenantID = "tenant-2" }),
	)

	starter := &fakeStarter{}
	dispatcher := triggers.NewDispatcher(store, starter, testLogger())

	event := events.LeadStageChanged{SubjectID: "lead-1", ChannelID: "channel-1", Stage: "qualified"}
	event.TenantID = "tenant-1"

	started, err := dispatcher.Dispatch(t.Context(), event.TriggerEvent())
	require.NoError(t, err)
	assert.Len(t, started, 2)

	workflowIDs := make([]string, 0)
	for _, req := range starter.Requests() {
		workflowIDs = append(workflowIDs, req.WorkflowID)
		assert.Equal(t, "lead-1", req.SubjectID)
		assert.Equal(t, "channel-1", req.ChannelID)
		assert.Equal(t, "qualified", req.ContextData["stage"])
	}

	assert.ElementsMatch(t, []string{"any-stage", "qualified"}, workflowIDs)
}

func TestDispatcher_DispatchPurchase(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	seed(t, store,
		triggerDefinition("course", &models.TriggerConfig{Event: models.TriggerEventPurchase, ProductID: "course"}),
		triggerDefinition("ebook", &models.TriggerConfig{Event: models.TriggerEventPurchase, ProductID: "ebook"}),
	)

	starter := &fakeStarter{}
	dispatcher := triggers.NewDispatcher(store, starter, testLogger())

	event := events.LeadPurchaseCompleted{SubjectID: "lead-1", ProductID: "course", Amount: 99, Currency: "USD"}

	started, err := dispatcher.Dispatch(t.Context(), event.TriggerEvent())
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, "course", started[0].WorkflowID)
	assert.InDelta(t, 99.0, starter.Requests()[0].ContextData["amount"], 0.001)
}

func TestDispatcher_StartFailureDoesNotStopOthers(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	seed(t, store,
		triggerDefinition("a", &models.TriggerConfig{Event: models.TriggerEventStageChanged}),
		triggerDefinition("b", &models.TriggerConfig{Event: models.TriggerEventStageChanged}),
	)

	starter := &fakeStarter{failFor: "a"}
	dispatcher := triggers.NewDispatcher(store, starter, testLogger())

	started, err := dispatcher.Dispatch(t.Context(), models.TriggerEvent{Type: models.TriggerEventStageChanged, SubjectID: "lead-1"})
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, "b", started[0].WorkflowID)
	assert.Len(t, starter.Requests(), 2)
}

func TestDispatcher_LookupFailureIsReturned(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.GetMockWorkflowRepository().On("Published", mock.Anything, "tenant-1").
		Return(nil, errors.New("connection refused")).Once()

	dispatcher := triggers.NewDispatcher(store, &fakeStarter{}, testLogger())

	_, err := dispatcher.Dispatch(t.Context(), models.TriggerEvent{Type: models.TriggerEventStageChanged, TenantID: "tenant-1"})
	require.ErrorContains(t, err, "connection refused")
}

func TestDispatcher_SkipsSubjectsAlreadyInWorkflow(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	seed(t, store, triggerDefinition("welcome", &models.TriggerConfig{Event: models.TriggerEventStageChanged}))

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	collaborators := mocks.NewCollaborators()
	executor := nodes.NewExecutor(collaborators.Protocol(), testLogger(), nodes.WithClock(clock))
	coordinator := engine.NewCoordinator(store, executor, testLogger(), engine.WithClock(clock))
	dispatcher := triggers.NewDispatcher(store, coordinator, testLogger())

	event := models.TriggerEvent{Type: models.TriggerEventStageChanged, SubjectID: "lead-1"}

	started, err := dispatcher.Dispatch(t.Context(), event)
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, models.ExecutionStatusPending, started[0].Status)

	started, err = dispatcher.Dispatch(t.Context(), event)
	require.NoError(t, err)
	assert.Empty(t, started)

	executions, err := store.ExecutionRepository().ListBySubject(t.Context(), "lead-1")
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestDispatcher_RegisterConsumesBusEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := file.NewPersistence(t.TempDir())
	seed(t, store, triggerDefinition("welcome", &models.TriggerConfig{Event: models.TriggerEventPurchase}))

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, testLogger())
	t.Cleanup(func() { _ = bus.Close(context.Background()) })

	starter := &fakeStarter{}
	dispatcher := triggers.NewDispatcher(store, starter, testLogger())

	require.NoError(t, dispatcher.Register(ctx, bus))
	require.NoError(t, bus.Subscribe(ctx))

	invalid := events.LeadPurchaseCompleted{BaseEvent: events.NewBaseEvent(events.LeadPurchaseCompletedEvent, "")}
	require.NoError(t, bus.Publish(ctx, "lead-0", invalid))

	valid := events.LeadPurchaseCompleted{
		BaseEvent: events.NewBaseEvent(events.LeadPurchaseCompletedEvent, ""),
		SubjectID: "lead-1",
		ProductID: "course",
	}
	require.NoError(t, bus.Publish(ctx, "lead-1", valid))

	require.Eventually(t, func() bool {
		return len(starter.Requests()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "lead-1", starter.Requests()[0].SubjectID)
}

func TestDispatcher_RegisterHandlerFailure(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", events.LeadStageChangedEvent, mock.Anything).Return(nil).Once()
	bus.On("Handle", events.LeadPurchaseCompletedEvent, mock.Anything).Return(errors.New("closed")).Once()

	dispatcher := triggers.NewDispatcher(mocks.NewMockPersistence(), &fakeStarter{}, testLogger())

	err := dispatcher.Register(t.Context(), bus)
	require.ErrorContains(t, err, "closed")
	bus.AssertExpectations(t)
}

func TestDispatcher_ConcurrentRedeliveryStartsOnce(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	seed(t, store, triggerDefinition("welcome", &models.TriggerConfig{Event: models.TriggerEventStageChanged}))

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	executor := nodes.NewExecutor(mocks.NewCollaborators().Protocol(), testLogger(), nodes.WithClock(clock))
	coordinator := engine.NewCoordinator(store, executor, testLogger(), engine.WithClock(clock))
	dispatcher := triggers.NewDispatcher(store, coordinator, testLogger())

	event := models.TriggerEvent{Type: models.TriggerEventStageChanged, SubjectID: "lead-1"}

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := dispatcher.Dispatch(t.Context(), event)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	executions, err := store.ExecutionRepository().ListBySubject(t.Context(), "lead-1")
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}
