package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dukex/leadflow/pkg/services"
)

// importFiles creates a draft workflow per file and publishes it when publish is set.
// It stops at the first failure.
func importFiles(
	ctx context.Context,
	w io.Writer,
	workflows *services.Workflow,
	publishing *services.Publishing,
	paths []string,
	tenantID string,
	publish bool,
) error {
	for _, path := range paths {
		definition, err := loadDefinition(path)
		if err != nil {
			return err
		}

		if tenantID != "" {
			definition.TenantID = tenantID
		}

		created, err := workflows.Create(ctx, definition)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", path, err)
		}

		status := created.Status

		if publish {
			published, err := publishing.PublishWorkflow(ctx, created.ID)
			if err != nil {
				return fmt.Errorf("imported %s as draft %s but could not publish it: %w", path, created.ID, err)
			}

			status = published.Status
		}

		_, _ = fmt.Fprintf(w, "%s -> %s (%s)\n", path, created.ID, status)
	}

	return nil
}
