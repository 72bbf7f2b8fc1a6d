package webhook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/triggers/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []eventbus.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, key string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}

	r.keys = append(r.keys, key)
	r.events = append(r.events, event)

	return nil
}

func newReceiver(publisher *recordingPublisher, token string) http.Handler {
	return webhook.NewReceiver(publisher, token, slog.New(slog.NewTextHandler(io.Discard, nil))).Handler()
}

func post(t *testing.T, handler http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func TestReceiver_StageChanged(t *testing.T) {
	publisher := &recordingPublisher{}
	handler := newReceiver(publisher, "")

	rec := post(t, handler, "/events/stage-changed",
		`{"tenant_id":"tenant-1","subject_id":"lead-1","channel_id":"wa-1","stage":"qualified"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, []string{"lead-1"}, publisher.keys)

	event, ok := publisher.events[0].(events.LeadStageChanged)
	require.True(t, ok)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, events.LeadStageChangedEvent, event.Type)
	assert.Equal(t, "tenant-1", event.TenantID)
	assert.Equal(t, "qualified", event.Stage)
}

func TestReceiver_PurchaseCompleted(t *testing.T) {
	publisher := &recordingPublisher{}
	handler := newReceiver(publisher, "")

	rec := post(t, handler, "/events/purchase-completed",
		`{"id":"evt-1","subject_id":"lead-1","product_id":"course","amount":49.9,"currency":"EUR"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	event, ok := publisher.events[0].(events.LeadPurchaseCompleted)
	require.True(t, ok)
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, "course", event.ProductID)
}

func TestReceiver_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		headers  map[string]string
		token    string
		err      error
		expected int
	}{
		{name: "missing stage", path: "/events/stage-changed", body: `{"subject_id":"lead-1"}`, expected: http.StatusBadRequest},
		{name: "missing product", path: "/events/purchase-completed", body: `{"subject_id":"lead-1"}`, expected: http.StatusBadRequest},
		{name: "malformed json", path: "/events/stage-changed", body: `{`, expected: http.StatusBadRequest},
		{
			name:     "missing token",
			path:     "/events/stage-changed",
			body:     `{"subject_id":"lead-1","stage":"won"}`,
			token:    "secret",
			expected: http.StatusUnauthorized,
		},
		{
			name:     "wrong token",
			path:     "/events/stage-changed",
			body:     `{"subject_id":"lead-1","stage":"won"}`,
			headers:  map[string]string{webhook.TokenHeader: "guess"},
			token:    "secret",
			expected: http.StatusUnauthorized,
		},
		{
			name:     "bus down",
			path:     "/events/stage-changed",
			body:     `{"subject_id":"lead-1","stage":"won"}`,
			err:      errors.New("broker unavailable"),
			expected: http.StatusServiceUnavailable,
		},
		{name: "unknown path", path: "/events/other", body: `{}`, expected: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &recordingPublisher{err: tt.err}
			rec := post(t, newReceiver(publisher, tt.token), tt.path, tt.body, tt.headers)

			assert.Equal(t, tt.expected, rec.Code)
			assert.Empty(t, publisher.events)
		})
	}
}

func TestReceiver_AcceptsValidToken(t *testing.T) {
	publisher := &recordingPublisher{}

	rec := post(t, newReceiver(publisher, "secret"), "/events/stage-changed",
		`{"subject_id":"lead-1","stage":"won"}`, map[string]string{webhook.TokenHeader: "secret"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, publisher.events, 1)
}

func TestReceiver_OnlyAcceptsPost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/events/stage-changed", nil)
	rec := httptest.NewRecorder()

	newReceiver(&recordingPublisher{}, "").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
