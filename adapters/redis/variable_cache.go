// Package redis caches measured variables in Redis so that several workers share one
// read-through layer in front of the document store
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fieldtrial/domain/core"
	"fieldtrial/domain/phenotype"
	"fieldtrial/ports"

	"github.com/redis/go-redis/v9"
)

// VariableCache stores variables as their JSON document under <namespace>:mv:<id>
type VariableCache struct {
	rdb       *redis.Client
	namespace string
}

var _ ports.VariableCache = (*VariableCache)(nil)

// NewVariableCache creates a cache. namespace must not be empty.
func NewVariableCache(opts *redis.Options, namespace string) (*VariableCache, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &VariableCache{rdb: redis.NewClient(opts), namespace: namespace}, nil
}

// Key returns the Redis key of a variable
func (c *VariableCache) Key(id core.ID) string {
	return c.namespace + ":mv:" + id.String()
}

func (c *VariableCache) Get(ctx context.Context, id core.ID) (*phenotype.MeasuredVariable, error) {
	raw, err := c.rdb.Get(ctx, c.Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}
	var doc core.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: cached variable %s: %v", core.ErrInvalidDocument, id, err)
	}
	return phenotype.VariableFromJSON(doc)
}

func (c *VariableCache) Set(ctx context.Context, mv *phenotype.MeasuredVariable, ttl time.Duration) error {
	raw, err := json.Marshal(mv.ToJSON())
	if err != nil {
		return fmt.Errorf("marshal variable %s: %w", mv.ID, err)
	}
	if err := c.rdb.Set(ctx, c.Key(mv.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", mv.ID, err)
	}
	return nil
}

func (c *VariableCache) Delete(ctx context.Context, id core.ID) error {
	if err := c.rdb.Del(ctx, c.Key(id)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", id, err)
	}
	return nil
}

// Ping verifies Redis connectivity
func (c *VariableCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *VariableCache) Close() error {
	return c.rdb.Close()
}
