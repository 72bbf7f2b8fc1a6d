package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/leadflow/pkg/engine"
	"github.com/robfig/cron/v3"
)

// Ticker runs one scheduler pass.
type Ticker interface {
	Tick(ctx context.Context) (engine.TickResult, error)
}

// SchedulerManager calls Tick on a cron schedule. Overlapping ticks are skipped.
type SchedulerManager struct {
	ticker   Ticker
	schedule string
	logger   *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSchedulerManager(ticker Ticker, schedule string, logger *slog.Logger) (*SchedulerManager, error) {
	_, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule '%s': %w", schedule, err)
	}

	return &SchedulerManager{
		ticker:   ticker,
		schedule: schedule,
		logger:   logger.With("module", "leadflow-scheduler"),
	}, nil
}

func (m *SchedulerManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := m.cron.AddFunc(m.schedule, func() { m.tick(m.ctx) })
	if err != nil {
		m.cancel()

		return fmt.Errorf("failed to schedule ticks: %w", err)
	}

	m.cron.Start()
	m.logger.InfoContext(ctx, "Scheduler started", "schedule", m.schedule, "entry_id", entryID)

	return nil
}

// Stop stops scheduling and waits for a running tick until ctx is done.
func (m *SchedulerManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron == nil {
		return nil
	}

	done := m.cron.Stop().Done()

	select {
	case <-done:
	case <-ctx.Done():
		m.cancel()

		return ctx.Err()
	}

	m.cancel()
	m.cron = nil
	m.logger.InfoContext(ctx, "Scheduler stopped")

	return nil
}

func (m *SchedulerManager) tick(ctx context.Context) {
	result, err := m.ticker.Tick(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Tick failed", "error", err, "due", result.Due, "claimed", result.Claimed)

		return
	}

	if result.Due == 0 {
		m.logger.DebugContext(ctx, "Nothing due")

		return
	}

	m.logger.InfoContext(ctx, "Tick finished",
		"due", result.Due,
		"claimed", result.Claimed,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
}
