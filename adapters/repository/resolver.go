package repository

import (
	"context"

	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"
	"fieldtrial/domain/phenotype"
	"fieldtrial/ports"
)

// Resolver resolves observation references by id. Variables come from a shared
// phenotype.Cache so that every observation of a loaded tree holds the same instance.
type Resolver struct {
	variables   *phenotype.Cache
	instruments ports.InstrumentRepository
}

var _ observation.Resolver = (*Resolver)(nil)

// NewResolver creates a resolver over cache and instruments
func NewResolver(cache *phenotype.Cache, instruments ports.InstrumentRepository) *Resolver {
	return &Resolver{variables: cache, instruments: instruments}
}

func (r *Resolver) ResolvePhenotype(ctx context.Context, id core.ID) (observation.PhenotypeRef, error) {
	h, err := r.variables.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	return observation.Share(h), nil
}

func (r *Resolver) ResolveInstrument(ctx context.Context, id core.ID) (*phenotype.Instrument, error) {
	return r.instruments.GetByID(ctx, id)
}
