// Package redis provides Redis persistence for workflows, executions and
// suspension snapshots. Entities are JSON strings under namespaced keys;
// snapshot claims use SETNX so Redis picks a single winner.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/weftworks/weft/pkg/persistence"
)

const (
	workflowKeyPrefix  = "weft:workflows:"
	workflowIndexKey   = "weft:workflows"
	executionKeyPrefix = "weft:executions:"
	executionIndexKey  = "weft:executions:by_workflow:"
	snapshotKeyPrefix  = "weft:snapshots:"
	claimKeySuffix     = ":claim"
)

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client        goredis.UniversalClient
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	snapshotRepo  *SnapshotRepository
}

// NewPersistence connects to Redis using a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client:        client,
		logger:        logger,
		workflowRepo:  &WorkflowRepository{client: client},
		executionRepo: &ExecutionRepository{client: client},
		snapshotRepo:  &SnapshotRepository{client: client},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) SnapshotRepository() persistence.SnapshotRepository {
	return p.snapshotRepo
}

// HealthCheck verifies the Redis connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the Redis client.
func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
