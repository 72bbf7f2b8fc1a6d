package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

// WorkflowRepository stores each definition as a JSON string and keeps the ids in a set.
type WorkflowRepository struct {
	client goredis.UniversalClient
	keys   keyspace
}

func newWorkflowRepository(client goredis.UniversalClient, keys keyspace) *WorkflowRepository {
	return &WorkflowRepository{client: client, keys: keys}
}

func (r *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	definitions, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	return persistence.Paginate(definitions, opts), nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	body, err := r.client.Get(ctx, r.keys.workflow(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to get workflow %s: %w", id, err)
	}

	var definition models.WorkflowDefinition

	err = json.Unmarshal(body, &definition)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &definition, nil
}

func (r *WorkflowRepository) Published(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	definitions, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	published := make([]*models.WorkflowDefinition, 0)

	for _, definition := range definitions {
		if definition.IsPublished() && (tenantID == "" || definition.TenantID == tenantID) {
			published = append(published, definition)
		}
	}

	return published, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	body, err := json.Marshal(definition)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", definition.ID, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.keys.workflow(definition.ID), body, 0)
		pipe.SAdd(ctx, r.keys.workflows(), definition.ID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", definition.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	var deleted *goredis.IntCmd

	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		deleted = pipe.Del(ctx, r.keys.workflow(id))
		pipe.SRem(ctx, r.keys.workflows(), id)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	if deleted.Val() == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) all(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	ids, err := r.client.SMembers(ctx, r.keys.workflows()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow ids: %w", err)
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(ids))
	if len(ids) == 0 {
		return definitions, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.keys.workflow(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}

	for i, value := range values {
		body, ok := value.(string)
		if !ok {
			continue
		}

		var definition models.WorkflowDefinition

		err = json.Unmarshal([]byte(body), &definition)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", ids[i], err)
		}

		definitions = append(definitions, &definition)
	}

	return definitions, nil
}
