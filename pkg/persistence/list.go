package persistence

import (
	"fmt"
	"sort"

	"github.com/dukex/leadflow/pkg/models"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var allowedSorts = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"name":       true,
}

// Normalize applies defaults and validates the sort field against an allowlist.
func (o *ListWorkflowsOptions) Normalize() error {
	if o.Limit <= 0 || o.Limit > MaxListLimit {
		o.Limit = DefaultListLimit
	}

	if o.Offset < 0 {
		o.Offset = 0
	}

	if o.SortBy == "" {
		o.SortBy = "created_at"
	}

	if o.SortOrder != "asc" {
		o.SortOrder = "desc"
	}

	if !allowedSorts[o.SortBy] {
		return fmt.Errorf("%w: %s", ErrInvalidSortField, o.SortBy)
	}

	return nil
}

// Matches reports whether definition passes the tenant and status filters.
func (o *ListWorkflowsOptions) Matches(definition *models.WorkflowDefinition) bool {
	if o.TenantID != "" && definition.TenantID != o.TenantID {
		return false
	}

	if o.Status != nil && definition.Status != *o.Status {
		return false
	}

	return true
}

// Paginate filters, sorts and pages definitions held in memory. opts must be normalized.
func Paginate(definitions []*models.WorkflowDefinition, opts ListWorkflowsOptions) *WorkflowListResult {
	filtered := make([]*models.WorkflowDefinition, 0, len(definitions))

	for _, definition := range definitions {
		if opts.Matches(definition) {
			filtered = append(filtered, definition)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		var less bool

		switch opts.SortBy {
		case "updated_at":
			less = filtered[i].UpdatedAt.Before(filtered[j].UpdatedAt)
		case "name":
			less = filtered[i].Name < filtered[j].Name
		default:
			less = filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
		}

		if opts.SortOrder == "desc" {
			return !less
		}

		return less
	})

	totalCount := int64(len(filtered))

	if opts.Offset >= len(filtered) {
		return &WorkflowListResult{Workflows: make([]*models.WorkflowDefinition, 0), TotalCount: totalCount}
	}

	end := min(opts.Offset+opts.Limit, len(filtered))

	return &WorkflowListResult{
		Workflows:   filtered[opts.Offset:end],
		TotalCount:  totalCount,
		HasNextPage: end < len(filtered),
	}
}
