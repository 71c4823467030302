package ports

import (
	"context"
	"time"

	"fieldtrial/domain/core"
	"fieldtrial/domain/phenotype"
)

// VariableCache is a shared cache of measured variables in front of the store
type VariableCache interface {
	// Get returns (nil, nil) on a miss
	Get(ctx context.Context, id core.ID) (*phenotype.MeasuredVariable, error)
	Set(ctx context.Context, mv *phenotype.MeasuredVariable, ttl time.Duration) error
	Delete(ctx context.Context, id core.ID) error
}
