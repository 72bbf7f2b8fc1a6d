package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

// Each execution is a hash holding the JSON document plus the fields the
// scripts compare: status, token and a version bumped on every write. The due
// sorted set scores pending executions by their due time and running ones by
// their lease expiry.

var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'data', ARGV[2], 'status', ARGV[3], 'token', ARGV[4], 'version', 1)
if ARGV[5] ~= '' then redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1]) end
redis.call('ZADD', KEYS[3], ARGV[6], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[6], ARGV[1])
return 1
`)

var saveScript = goredis.NewScript(`
local current = redis.call('HMGET', KEYS[1], 'status', 'token')
if not current[1] then return -1 end
if ARGV[2] == '' or current[1] ~= 'running' or current[2] ~= ARGV[2] then return 0 end
redis.call('HSET', KEYS[1], 'data', ARGV[3], 'status', ARGV[4], 'token', ARGV[5])
redis.call('HINCRBY', KEYS[1], 'version', 1)
if ARGV[6] == '' then
  redis.call('ZREM', KEYS[2], ARGV[1])
else
  redis.call('ZADD', KEYS[2], ARGV[6], ARGV[1])
end
return 1
`)

var claimScript = goredis.NewScript(`
local version = redis.call('HGET', KEYS[1], 'version')
if not version then return -1 end
if version ~= ARGV[2] then return 0 end
redis.call('HSET', KEYS[1], 'data', ARGV[3], 'status', 'running', 'token', ARGV[4])
redis.call('HINCRBY', KEYS[1], 'version', 1)
redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1])
return 1
`)

// ExecutionRepository stores executions in Redis hashes. Conditional writes run
// as Lua scripts, so claims are atomic across processes.
type ExecutionRepository struct {
	client goredis.UniversalClient
	keys   keyspace
}

func newExecutionRepository(client goredis.UniversalClient, keys keyspace) *ExecutionRepository {
	return &ExecutionRepository{client: client, keys: keys}
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	created, err := createScript.Run(ctx, r.client,
		[]string{
			r.keys.execution(execution.ID),
			r.keys.due(),
			r.keys.byWorkflow(execution.WorkflowID),
			r.keys.bySubject(execution.SubjectID),
		},
		execution.ID, data, string(execution.Status), execution.ClaimToken, dueScore(execution),
		execution.CreatedAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to create execution %s: %w", execution.ID, err)
	}

	if created == 0 {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	execution, _, err := r.load(ctx, "GetByID", id)

	return execution, err
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution, token string) error {
	return r.save(ctx, "Save", execution, token)
}

func (r *ExecutionRepository) Fail(ctx context.Context, id, token, reason string, now time.Time) error {
	stored, _, err := r.load(ctx, "Fail", id)
	if err != nil {
		return err
	}

	stored.Status = models.ExecutionStatusFailed
	stored.Error = reason
	stored.ClaimToken = ""
	stored.ClaimExpiresAt = nil
	stored.ScheduledFor = nil
	stored.UpdatedAt = now
	stored.CompletedAt = &now

	return r.save(ctx, "Fail", stored, token)
}

func (r *ExecutionRepository) Claim(ctx context.Context, id string, claim models.Claim) (*models.Execution, error) {
	stored, version, err := r.load(ctx, "Claim", id)
	if err != nil {
		return nil, err
	}

	if !stored.IsDue(claim.Now) {
		return nil, persistence.NewExecutionError("Claim", id, persistence.ErrClaimConflict)
	}

	expiresAt := claim.ExpiresAt
	stored.Status = models.ExecutionStatusRunning
	stored.ClaimToken = claim.Token
	stored.ClaimExpiresAt = &expiresAt
	stored.UpdatedAt = claim.Now

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution %s: %w", id, err)
	}

	claimed, err := claimScript.Run(ctx, r.client,
		[]string{r.keys.execution(id), r.keys.due()},
		id, version, data, claim.Token, expiresAt.UnixMilli(),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to claim execution %s: %w", id, err)
	}

	switch claimed {
	case 1:
		return stored, nil
	case -1:
		return nil, persistence.NewExecutionError("Claim", id, persistence.ErrExecutionNotFound)
	default:
		return nil, persistence.NewExecutionError("Claim", id, persistence.ErrClaimConflict)
	}
}

func (r *ExecutionRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	rangeBy := &goredis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10)}
	if limit > 0 {
		rangeBy.Count = int64(limit)
	}

	ids, err := r.client.ZRangeByScore(ctx, r.keys.due(), rangeBy).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due executions: %w", err)
	}

	executions, err := r.loadMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Execution, 0, len(executions))

	for _, execution := range executions {
		if execution.IsDue(now) {
			due = append(due, execution)
		}
	}

	return due, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return r.listIndex(ctx, r.keys.byWorkflow(workflowID))
}

func (r *ExecutionRepository) ListBySubject(ctx context.Context, subjectID string) ([]*models.Execution, error) {
	return r.listIndex(ctx, r.keys.bySubject(subjectID))
}

func (r *ExecutionRepository) listIndex(ctx context.Context, key string) ([]*models.Execution, error) {
	ids, err := r.client.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return r.loadMany(ctx, ids)
}

func (r *ExecutionRepository) save(ctx context.Context, op string, execution *models.Execution, token string) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	saved, err := saveScript.Run(ctx, r.client,
		[]string{r.keys.execution(execution.ID), r.keys.due()},
		execution.ID, token, data, string(execution.Status), execution.ClaimToken, dueScore(execution),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
	}

	switch saved {
	case 1:
		return nil
	case -1:
		return persistence.NewExecutionError(op, execution.ID, persistence.ErrExecutionNotFound)
	default:
		return persistence.NewExecutionError(op, execution.ID, persistence.ErrClaimLost)
	}
}

// load returns the execution together with the version it was read at.
func (r *ExecutionRepository) load(ctx context.Context, op, id string) (*models.Execution, string, error) {
	values, err := r.client.HMGet(ctx, r.keys.execution(id), "data", "version").Result()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get execution %s: %w", id, err)
	}

	data, ok := values[0].(string)
	if !ok {
		return nil, "", persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
	}

	version, _ := values[1].(string)

	execution, err := decode(id, data)
	if err != nil {
		return nil, "", err
	}

	return execution, version, nil
}

func (r *ExecutionRepository) loadMany(ctx context.Context, ids []string) ([]*models.Execution, error) {
	executions := make([]*models.Execution, 0, len(ids))
	if len(ids) == 0 {
		return executions, nil
	}

	cmds := make([]*goredis.StringCmd, len(ids))

	_, err := r.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGet(ctx, r.keys.execution(id), "data")
		}

		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	for i, cmd := range cmds {
		data, err := cmd.Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", ids[i], err)
		}

		execution, err := decode(ids[i], data)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func decode(id, data string) (*models.Execution, error) {
	var execution models.Execution

	err := json.Unmarshal([]byte(data), &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

// dueScore is the due-set score of execution, or "" when it must leave the set.
func dueScore(execution *models.Execution) string {
	switch {
	case execution.Status == models.ExecutionStatusPending && execution.ScheduledFor != nil:
		return strconv.FormatInt(execution.ScheduledFor.UnixMilli(), 10)
	case execution.Status == models.ExecutionStatusRunning && execution.ClaimExpiresAt != nil:
		return strconv.FormatInt(execution.ClaimExpiresAt.UnixMilli(), 10)
	default:
		return ""
	}
}
