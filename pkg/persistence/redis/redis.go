// Package redis provides a Redis-backed persistence implementation.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "leadflow"

// Persistence implements persistence.Persistence on top of a single Redis database.
type Persistence struct {
	client goredis.UniversalClient
	logger *slog.Logger

	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence connects to the Redis server at url (redis://[:password@]host:port/db).
func NewPersistence(ctx context.Context, logger *slog.Logger, url string) (*Persistence, error) {
	options, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return NewPersistenceWithClient(client, logger, defaultPrefix), nil
}

// NewPersistenceWithClient wraps an existing client. Every key is namespaced by prefix.
func NewPersistenceWithClient(client goredis.UniversalClient, logger *slog.Logger, prefix string) *Persistence {
	keys := keyspace(prefix)

	return &Persistence{
		client:        client,
		logger:        logger.With("module", "redis_persistence"),
		workflowRepo:  newWorkflowRepository(client, keys),
		executionRepo: newExecutionRepository(client, keys),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}

func (p *Persistence) Close(ctx context.Context) error {
	err := p.client.Close()
	if err != nil {
		p.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)

		return err
	}

	return nil
}

type keyspace string

func (k keyspace) workflow(id string) string { return string(k) + ":workflow:" + id }
func (k keyspace) workflows() string         { return string(k) + ":workflows" }
func (k keyspace) execution(id string) string {
	return string(k) + ":execution:" + id
}
func (k keyspace) due() string { return string(k) + ":executions:due" }
func (k keyspace) byWorkflow(id string) string {
	return string(k) + ":executions:workflow:" + id
}
func (k keyspace) bySubject(id string) string {
	return string(k) + ":executions:subject:" + id
}
