package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/collaborators/logonly"
	"github.com/dukex/leadflow/pkg/collaborators/webhook"
	"github.com/dukex/leadflow/pkg/engine"
	"github.com/dukex/leadflow/pkg/protocol"
)

// stepCollaboratorCalls is the most collaborator calls one node makes:
// subject lookup, text generation and delivery of a generated message.
const stepCollaboratorCalls = 3

var ErrClaimTTLTooShort = errors.New("claim ttl is shorter than the longest step")

// CheckClaimTTL rejects a claim lease that a single step could outlive
// while retrying collaborator calls.
func CheckClaimTTL(config engine.Config, collaborators webhook.Config) error {
	if !collaborators.Configured() {
		return nil
	}

	ttl := config.ClaimTTL
	if ttl <= 0 {
		ttl = engine.DefaultClaimTTL
	}

	budget := stepCollaboratorCalls * collaborators.MaxCallDuration()
	if ttl <= budget {
		return fmt.Errorf("%w: claim ttl %s, step budget %s (%d calls of up to %s)",
			ErrClaimTTLTooShort, ttl, budget, stepCollaboratorCalls, collaborators.MaxCallDuration().Round(time.Second))
	}

	return nil
}

// NewCollaborators returns the webhook collaborators when any endpoint is
// configured, and the log-only set otherwise.
func NewCollaborators(config webhook.Config, logger *slog.Logger) protocol.Collaborators {
	if !config.Configured() {
		logger.Warn("No collaborator endpoints configured, messages are only logged")

		return logonly.Collaborators(logger, logonly.NewSubjects())
	}

	return webhook.NewClient(config, logger).Collaborators()
}
