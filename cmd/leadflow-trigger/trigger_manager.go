package main

import (
	"context"
	"log/slog"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/triggers"
	"github.com/dukex/leadflow/pkg/triggers/webhook"
)

// TriggerManager starts executions from lead events. Events reach the bus
// from the webhook receiver or from other producers on the same bus.
type TriggerManager struct {
	dispatcher *triggers.Dispatcher
	receiver   *webhook.Receiver
	bus        eventbus.EventBus
	port       int
	logger     *slog.Logger
}

// NewTriggerManager creates a manager. A port of zero or less disables the
// webhook receiver.
func NewTriggerManager(
	dispatcher *triggers.Dispatcher,
	bus eventbus.EventBus,
	token string,
	port int,
	logger *slog.Logger,
) *TriggerManager {
	return &TriggerManager{
		dispatcher: dispatcher,
		receiver:   webhook.NewReceiver(bus, token, logger),
		bus:        bus,
		port:       port,
		logger:     logger.With("module", "leadflow-trigger"),
	}
}

// Start subscribes the dispatcher and starts the receiver. Both stop
// consuming when ctx is done.
func (m *TriggerManager) Start(ctx context.Context) error {
	err := m.dispatcher.Register(ctx, m.bus)
	if err != nil {
		return err
	}

	err = m.bus.Subscribe(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if m.port > 0 {
		err = m.receiver.Start(ctx, m.port)
		if err != nil {
			return err
		}
	} else {
		m.logger.InfoContext(ctx, "Webhook receiver disabled")
	}

	m.logger.InfoContext(ctx, "Trigger service started")

	return nil
}

func (m *TriggerManager) Stop(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Shutting down trigger service...")

	return m.receiver.Stop(ctx)
}
