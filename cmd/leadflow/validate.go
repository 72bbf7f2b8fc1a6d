package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dukex/leadflow/pkg/graph"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/services"
	"github.com/go-playground/validator/v10"
)

var ErrInvalidDefinitions = errors.New("invalid workflow definitions found")

// checkDefinition returns the structural and graph problems of definition,
// and the ids of nodes no path reaches.
func checkDefinition(validate *validator.Validate, definition *models.WorkflowDefinition) ([]string, error) {
	err := validate.Struct(definition)
	if err != nil {
		return nil, err
	}

	g, err := graph.Compile(definition)
	if err != nil {
		return nil, err
	}

	return g.Unreachable(), nil
}

// validateFiles reports on every file and fails when any is invalid.
func validateFiles(w io.Writer, paths []string) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	invalid := 0

	for _, path := range paths {
		definition, err := loadDefinition(path)
		if err == nil {
			var unreachable []string

			unreachable, err = checkDefinition(validate, definition)
			if err == nil {
				report(w, path, definition, unreachable)

				continue
			}
		}

		invalid++

		_, _ = fmt.Fprintf(w, "INVALID %s\n  %v\n", path, err)
	}

	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidDefinitions, invalid, len(paths))
	}

	return nil
}

// validateStored checks the published workflows of the store, page by page.
func validateStored(ctx context.Context, w io.Writer, workflows *services.Workflow, tenantID string) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	published := models.WorkflowStatusPublished
	invalid, total := 0, 0

	for offset := 0; ; {
		page, err := workflows.ListWorkflows(ctx, services.ListWorkflowsRequest{
			TenantID: tenantID,
			Status:   &published,
			Limit:    100,
			Offset:   offset,
		})
		if err != nil {
			return err
		}

		for _, definition := range page.Workflows {
			total++

			unreachable, err := checkDefinition(validate, definition)
			if err != nil {
				invalid++

				_, _ = fmt.Fprintf(w, "INVALID %s (%s)\n  %v\n", definition.Name, definition.ID, err)

				continue
			}

			report(w, definition.ID, definition, unreachable)
		}

		if !page.HasNextPage {
			break
		}

		offset += len(page.Workflows)
	}

	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidDefinitions, invalid, total)
	}

	return nil
}

func report(w io.Writer, source string, definition *models.WorkflowDefinition, unreachable []string) {
	_, _ = fmt.Fprintf(w, "OK %s: %s (%d nodes, %d edges)\n", source, definition.Name, len(definition.Nodes), len(definition.Edges))

	if len(unreachable) > 0 {
		_, _ = fmt.Fprintf(w, "  warning: unreachable nodes %v\n", unreachable)
	}
}
