// Package webhook receives lead activity from a CRM over HTTP and publishes it
// on the event bus, where the trigger dispatcher picks it up.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
)

// TokenHeader carries the shared secret when the receiver is configured with one.
const TokenHeader = "X-Leadflow-Token"

const maxBodyBytes = 1 << 20

type Receiver struct {
	publisher eventbus.EventPublisher
	token     string
	logger    *slog.Logger

	mu      sync.Mutex
	server  *http.Server
	started bool
}

// NewReceiver creates a receiver. An empty token disables authentication.
func NewReceiver(publisher eventbus.EventPublisher, token string, logger *slog.Logger) *Receiver {
	return &Receiver{
		publisher: publisher,
		token:     token,
		logger:    logger.With("module", "webhook_receiver"),
	}
}

// Handler routes POST /events/stage-changed and POST /events/purchase-completed.
func (r *Receiver) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /events/stage-changed", r.handleStageChanged)
	mux.HandleFunc("POST /events/purchase-completed", r.handlePurchaseCompleted)

	return mux
}

// Start serves the receiver on port until ctx is done.
func (r *Receiver) Start(ctx context.Context, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	r.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		r.logger.Info("Starting webhook HTTP server", "addr", r.server.Addr)

		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("Failed to start webhook server", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		if err := r.Stop(context.Background()); err != nil {
			r.logger.Error("Failed to stop webhook server", "error", err)
		}
	}()

	r.started = true

	return nil
}

func (r *Receiver) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || r.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down webhook server: %w", err)
	}

	r.started = false
	r.logger.Info("Webhook server stopped")

	return nil
}

type validatable interface {
	eventbus.Event
	Validate() error
}

func (r *Receiver) handleStageChanged(w http.ResponseWriter, req *http.Request) {
	var event events.LeadStageChanged

	if !r.decode(w, req, &event) {
		return
	}

	event.BaseEvent = r.base(event.BaseEvent, events.LeadStageChangedEvent)
	r.publish(w, req, event.SubjectID, event)
}

func (r *Receiver) handlePurchaseCompleted(w http.ResponseWriter, req *http.Request) {
	var event events.LeadPurchaseCompleted

	if !r.decode(w, req, &event) {
		return
	}

	event.BaseEvent = r.base(event.BaseEvent, events.LeadPurchaseCompletedEvent)
	r.publish(w, req, event.SubjectID, event)
}

func (r *Receiver) decode(w http.ResponseWriter, req *http.Request, target any) bool {
	if r.token != "" && subtle.ConstantTimeCompare([]byte(req.Header.Get(TokenHeader)), []byte(r.token)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})

		return false
	}

	err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(target)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})

		return false
	}

	return true
}

// base fills the envelope fields the sender may omit.
func (r *Receiver) base(base events.BaseEvent, eventType events.EventType) events.BaseEvent {
	fresh := events.NewBaseEvent(eventType, "")
	fresh.TenantID = base.TenantID
	fresh.Metadata = base.Metadata

	if base.ID != "" {
		fresh.ID = base.ID
	}

	if !base.Timestamp.IsZero() {
		fresh.Timestamp = base.Timestamp
	}

	return fresh
}

func (r *Receiver) publish(w http.ResponseWriter, req *http.Request, key string, event validatable) {
	ctx := req.Context()

	if err := event.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

		return
	}

	err := r.publisher.Publish(ctx, key, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish lead event", "event_type", event.GetType(), "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event bus unavailable"})

		return
	}

	r.logger.InfoContext(ctx, "Lead event received", "event_type", event.GetType(), "subject_id", key)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
