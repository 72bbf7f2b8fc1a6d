package webhook_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/collaborators/webhook"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	var body map[string]any
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

	return body
}

func TestClient_Send(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		received = decode(t, r)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := webhook.NewClient(webhook.Config{
		MessengerURL: server.URL,
		Headers:      map[string]string{"Authorization": "Bearer token"},
	}, testLogger())

	err := client.Send(t.Context(), "wa-1", "Welcome", protocol.DeliverySystemNotification)
	require.NoError(t, err)

	assert.Equal(t, "wa-1", received["channel_id"])
	assert.Equal(t, "Welcome", received["content"])
	assert.Equal(t, "system_notification", received["hint"])
}

func TestClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decode(t, r)
		assert.Equal(t, "Say hi", body["prompt"])

		subject, _ := body["subject"].(map[string]any)
		assert.Equal(t, "lead-1", subject["subject_id"])

		_, _ = w.Write([]byte(`{"text":"Hi Ana!"}`))
	}))
	defer server.Close()

	client := webhook.NewClient(webhook.Config{TextGeneratorURL: server.URL}, testLogger())

	text, err := client.Complete(t.Context(), "Say hi", protocol.SubjectContext{SubjectID: "lead-1"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana!", text)
}

func TestClient_DisableAutomation(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		received = decode(t, r)
	}))
	defer server.Close()

	client := webhook.NewClient(webhook.Config{AutomationURL: server.URL}, testLogger())

	require.NoError(t, client.DisableAutomation(t.Context(), "lead-1", "no reply"))
	assert.Equal(t, map[string]any{"subject_id": "lead-1", "reason": "no reply"}, received)
}

func TestClient_Subject(t *testing.T) {
	repliedAt := time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)

		if r.URL.Path != "/subjects/lead 1" {
			http.NotFound(w, r)

			return
		}

		_ = json.NewEncoder(w).Encode(models.Subject{ID: "lead 1", Name: "Ana", LastInboundMessageAt: &repliedAt})
	}))
	defer server.Close()

	client := webhook.NewClient(webhook.Config{SubjectsURL: server.URL + "/subjects/"}, testLogger())

	subject, err := client.Subject(t.Context(), "lead 1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", subject.Name)
	require.NotNil(t, subject.LastInboundMessageAt)
	assert.True(t, repliedAt.Equal(*subject.LastInboundMessageAt))

	_, err = client.Subject(t.Context(), "someone-else")
	require.ErrorIs(t, err, webhook.ErrSubjectNotFound)
}

func TestClient_Retries(t *testing.T) {
	tests := []struct {
		name          string
		failures      int32
		status        int
		attempts      int
		expectedCalls int32
		expectErr     bool
	}{
		{name: "recovers from server error", failures: 2, status: http.StatusBadGateway, attempts: 3, expectedCalls: 3},
		{name: "gives up after attempts", failures: 5, status: http.StatusServiceUnavailable, attempts: 2, expectedCalls: 2, expectErr: true},
		{name: "client error is not retried", failures: 5, status: http.StatusUnprocessableEntity, attempts: 3, expectedCalls: 1, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if calls.Add(1) <= tt.failures {
					http.Error(w, "nope", tt.status)

					return
				}

				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := webhook.NewClient(webhook.Config{
				MessengerURL: server.URL,
				Retries:      webhook.RetryConfig{Attempts: tt.attempts, Delay: time.Millisecond},
			}, testLogger())

			err := client.Send(t.Context(), "wa-1", "Hi", protocol.DeliverySystemNotification)
			if tt.expectErr {
				httpErr := &webhook.HTTPError{}
				require.ErrorAs(t, err, &httpErr)
				assert.Equal(t, tt.status, httpErr.StatusCode)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.expectedCalls, calls.Load())
		})
	}
}

func TestClient_Collaborators(t *testing.T) {
	client := webhook.NewClient(webhook.Config{MessengerURL: "http://messenger", SubjectsURL: "http://crm/subjects"}, testLogger())

	collaborators := client.Collaborators()
	assert.NotNil(t, collaborators.Messenger)
	assert.NotNil(t, collaborators.Subjects)
	assert.Nil(t, collaborators.TextGenerator)
	assert.Nil(t, collaborators.Disabler)

	_, err := client.Complete(t.Context(), "prompt", protocol.SubjectContext{})
	require.ErrorIs(t, err, webhook.ErrNotConfigured)
}

func TestConfig_MaxCallDuration(t *testing.T) {
	assert.Equal(t, webhook.DefaultTimeout, webhook.Config{}.MaxCallDuration())
	assert.Equal(t, 92*time.Second, webhook.Config{
		Timeout: 30 * time.Second,
		Retries: webhook.RetryConfig{Attempts: 3, Delay: time.Second},
	}.MaxCallDuration())
	assert.False(t, webhook.Config{}.Configured())
	assert.True(t, webhook.Config{SubjectsURL: "http://crm.local/leads"}.Configured())
}
