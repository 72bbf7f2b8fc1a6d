package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/otelhelper"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// TickResult summarizes one scheduler pass.
type TickResult struct {
	// Due is the number of claimable executions found.
	Due int `json:"due"`
	// Claimed executions were run by this pass.
	Claimed int `json:"claimed"`
	// Skipped executions were claimed by another worker first.
	Skipped int `json:"skipped"`
	// Failed counts claim errors and runs that returned an error.
	Failed int `json:"failed"`
}

// Scheduler resumes due executions. It has no timer of its own: something
// external calls Tick periodically.
type Scheduler struct {
	coordinator *Coordinator
	executions  persistence.ExecutionRepository
	logger      *slog.Logger
}

func NewScheduler(coordinator *Coordinator, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		coordinator: coordinator,
		executions:  coordinator.executions,
		logger:      logger.With("module", "scheduler"),
	}
}

// Tick claims every due execution, up to the configured batch size, and runs
// each one it won until it suspends or ends. Only listing errors abort the tick.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult

	config := s.coordinator.config
	clock := s.coordinator.clock

	ctx, span := otelhelper.StartSpan(ctx, s.coordinator.tracer, "scheduler.tick",
		attribute.String(otelhelper.WorkerIDKey, config.WorkerID),
	)
	defer span.End()

	due, err := s.executions.Due(ctx, clock.Now().UTC(), config.BatchSize)
	if err != nil {
		otelhelper.SetError(span, err)

		return result, fmt.Errorf("failed to list due executions: %w", err)
	}

	result.Due = len(due)

	for _, candidate := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		now := clock.Now().UTC()

		claimed, err := s.executions.Claim(ctx, candidate.ID, models.Claim{
			Token:     uuid.NewString(),
			Now:       now,
			ExpiresAt: now.Add(config.ClaimTTL),
		})
		if err != nil {
			if persistence.IsClaimConflict(err) {
				s.logger.DebugContext(ctx, "Execution already claimed", "execution_id", candidate.ID)

				result.Skipped++

				continue
			}

			s.logger.ErrorContext(ctx, "Failed to claim execution", "execution_id", candidate.ID, "error", err)

			result.Failed++

			continue
		}

		result.Claimed++

		s.coordinator.publish(ctx, events.ExecutionResumedEvent, claimed)

		err = s.coordinator.RunUntilSuspended(ctx, claimed)
		if err != nil {
			s.logger.ErrorContext(ctx, "Execution run failed", "execution_id", claimed.ID, "error", err)

			result.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("leadflow.tick.due", result.Due),
		attribute.Int("leadflow.tick.claimed", result.Claimed),
		attribute.Int("leadflow.tick.skipped", result.Skipped),
		attribute.Int("leadflow.tick.failed", result.Failed),
	)

	if result.Due > 0 {
		s.logger.InfoContext(ctx, "Tick finished",
			"due", result.Due,
			"claimed", result.Claimed,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
	}

	return result, nil
}
