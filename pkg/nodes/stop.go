package nodes

import (
	"context"
	"log/slog"

	"github.com/dukex/leadflow/pkg/models"
)

func (e *Executor) stop(ctx context.Context, logger *slog.Logger, cfg *models.StopAutomationConfig, execution *models.Execution) Step {
	if e.disabler == nil {
		logger.WarnContext(ctx, "No automation disabler configured", "subject_id", execution.SubjectID)
	} else {
		err := e.disabler.DisableAutomation(ctx, execution.SubjectID, cfg.Reason)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to disable automation",
				"subject_id", execution.SubjectID,
				"reason", cfg.Reason,
				"error", err,
			)
		}
	}

	return Terminate(models.ExecutionStatusStopped)
}
