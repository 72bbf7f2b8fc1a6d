package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

// listTriggers writes the trigger nodes of every published workflow of tenantID.
func listTriggers(ctx context.Context, w io.Writer, workflows persistence.WorkflowRepository, tenantID string) error {
	published, err := workflows.Published(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list published workflows: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "WORKFLOW\tTENANT\tNODE\tEVENT\tFILTER")

	for _, definition := range published {
		for _, node := range definition.TriggerNodes() {
			config, ok := node.Config.(*models.TriggerConfig)
			if !ok {
				continue
			}

			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				definition.Name, definition.TenantID, node.ID, config.Event, filter(config))
		}
	}

	return tw.Flush()
}

func filter(config *models.TriggerConfig) string {
	switch {
	case config.Stage != "":
		return "stage=" + config.Stage
	case config.ProductID != "":
		return "product=" + config.ProductID
	default:
		return "*"
	}
}
