package repository

import (
	"context"
	"time"

	"fieldtrial/domain/core"
	"fieldtrial/domain/phenotype"
	"fieldtrial/internal/logging"
	"fieldtrial/ports"
)

// CachedVariables puts a shared VariableCache in front of a VariableRepository. Cache
// failures are logged and fall through to the repository.
type CachedVariables struct {
	repo   ports.VariableRepository
	cache  ports.VariableCache
	ttl    time.Duration
	logger *logging.Logger
}

var (
	_ ports.VariableRepository = (*CachedVariables)(nil)
	_ phenotype.Loader         = (*CachedVariables)(nil)
)

// NewCachedVariables wraps repo. A nil cache disables caching.
func NewCachedVariables(repo ports.VariableRepository, cache ports.VariableCache, ttl time.Duration, logger *logging.Logger) *CachedVariables {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CachedVariables{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedVariables) GetByID(ctx context.Context, id core.ID) (*phenotype.MeasuredVariable, error) {
	if c.cache != nil {
		mv, err := c.cache.Get(ctx, id)
		if err != nil {
			c.logger.Warn("variable cache read failed", "id", id, "error", err)
		} else if mv != nil {
			return mv, nil
		}
	}
	mv, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, mv, c.ttl); err != nil {
			c.logger.Warn("variable cache write failed", "id", id, "error", err)
		}
	}
	return mv, nil
}

func (c *CachedVariables) FindByName(ctx context.Context, name string) (*phenotype.MeasuredVariable, error) {
	return c.repo.FindByName(ctx, name)
}

func (c *CachedVariables) Save(ctx context.Context, mv *phenotype.MeasuredVariable) error {
	if err := c.repo.Save(ctx, mv); err != nil {
		return err
	}
	if c.cache != nil {
		if err := c.cache.Delete(ctx, mv.ID); err != nil {
			c.logger.Warn("variable cache invalidation failed", "id", mv.ID, "error", err)
		}
	}
	return nil
}
