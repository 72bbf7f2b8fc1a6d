package engine_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/engine"
	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/mocks"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/persistence/file"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu    sync.Mutex
	types []events.EventType
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types = append(r.types, event.GetType())

	return nil
}

func (r *recordingPublisher) Types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]events.EventType(nil), r.types...)
}

type harness struct {
	ctx         context.Context
	clock       *clockwork.FakeClock
	store       persistence.Persistence
	mocks       *mocks.Collaborators
	subject     *models.Subject
	events      *recordingPublisher
	coordinator *engine.Coordinator
	scheduler   *engine.Scheduler
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, config engine.Config) *harness {
	t.Helper()

	return newHarnessWithStore(t, config, file.NewPersistence(t.TempDir()))
}

func newHarnessWithStore(t *testing.T, config engine.Config, store persistence.Persistence) *harness {
	t.Helper()

	clock := clockwork.NewFakeClockAt(base)
	collaborators := mocks.NewCollaborators()
	subject := &models.Subject{ID: "lead-1", Name: "Ana"}
	collaborators.Subjects.On("Subject", mock.Anything, "lead-1").Return(subject, nil).Maybe()

	executor := nodes.NewExecutor(collaborators.Protocol(), testLogger(), nodes.WithClock(clock))
	recorder := &recordingPublisher{}
	coordinator := engine.NewCoordinator(store, executor, testLogger(),
		engine.WithClock(clock),
		engine.WithConfig(config),
		engine.WithPublisher(recorder),
	)

	t.Cleanup(func() {
		collaborators.AssertExpectations(t)
	})

	return &harness{
		ctx:         context.Background(),
		clock:       clock,
		store:       store,
		mocks:       collaborators,
		subject:     subject,
		events:      recorder,
		coordinator: coordinator,
		scheduler:   engine.NewScheduler(coordinator, testLogger()),
	}
}

func (h *harness) publish(t *testing.T, definition *models.WorkflowDefinition) *models.WorkflowDefinition {
	t.Helper()

	require.NoError(t, h.store.WorkflowRepository().Save(h.ctx, definition))

	return definition
}

func (h *harness) start(t *testing.T, definition *models.WorkflowDefinition) *models.Execution {
	t.Helper()

	execution, err := h.coordinator.StartExecution(h.ctx, engine.StartRequest{
		WorkflowID: definition.ID,
		SubjectID:  "lead-1",
		ChannelID:  "channel-1",
	})
	require.NoError(t, err)

	return execution
}

func (h *harness) tick(t *testing.T) engine.TickResult {
	t.Helper()

	result, err := h.scheduler.Tick(h.ctx)
	require.NoError(t, err)

	return result
}

func (h *harness) reload(t *testing.T, id string) *models.Execution {
	t.Helper()

	execution, err := h.coordinator.Execution(h.ctx, id)
	require.NoError(t, err)

	return execution
}

func (h *harness) expectSend(content string) *mock.Call {
	return h.mocks.Messenger.On("Send", mock.Anything, "channel-1", content, protocol.DeliverySystemNotification).
		Return(nil).Once()
}
