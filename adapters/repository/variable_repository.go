package repository

import (
	"context"
	"fmt"

	"fieldtrial/domain/core"
	"fieldtrial/domain/phenotype"
	"fieldtrial/ports"
)

// VariableRepositoryImpl implements ports.VariableRepository
type VariableRepositoryImpl struct {
	store ports.DocumentStore
}

// NewVariableRepository creates a measured variable repository on store
func NewVariableRepository(store ports.DocumentStore) *VariableRepositoryImpl {
	return &VariableRepositoryImpl{store: store}
}

func (r *VariableRepositoryImpl) GetByID(ctx context.Context, id core.ID) (*phenotype.MeasuredVariable, error) {
	doc, err := r.store.FindByID(ctx, ports.CollectionVariables, id)
	if err != nil {
		if core.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %w", core.ErrVariableNotFound, err)
		}
		return nil, err
	}
	return phenotype.VariableFromJSON(doc)
}

// FindByName looks a variable up by its variable name, then by its trait name
func (r *VariableRepositoryImpl) FindByName(ctx context.Context, name string) (*phenotype.MeasuredVariable, error) {
	for _, path := range []string{"variable.name", "trait.name"} {
		docs, err := r.store.Find(ctx, ports.CollectionVariables, core.Filter{path: name})
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			return phenotype.VariableFromJSON(docs[0])
		}
	}
	return nil, fmt.Errorf("%w: measured variable named %q", core.ErrVariableNotFound, name)
}

func (r *VariableRepositoryImpl) Save(ctx context.Context, mv *phenotype.MeasuredVariable) error {
	if mv.ID.IsEmpty() {
		mv.ID = core.NewID()
	}
	return r.store.Save(ctx, ports.CollectionVariables, mv.ToJSON(), nil)
}

// InstrumentRepositoryImpl implements ports.InstrumentRepository
type InstrumentRepositoryImpl struct {
	store ports.DocumentStore
}

// NewInstrumentRepository creates an instrument repository on store
func NewInstrumentRepository(store ports.DocumentStore) ports.InstrumentRepository {
	return &InstrumentRepositoryImpl{store: store}
}

func (r *InstrumentRepositoryImpl) GetByID(ctx context.Context, id core.ID) (*phenotype.Instrument, error) {
	doc, err := r.store.FindByID(ctx, ports.CollectionInstruments, id)
	if err != nil {
		if core.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %w", core.ErrInstrumentNotFound, err)
		}
		return nil, err
	}
	return phenotype.InstrumentFromJSON(doc)
}

func (r *InstrumentRepositoryImpl) Save(ctx context.Context, in *phenotype.Instrument) error {
	if in.ID.IsEmpty() {
		in.ID = core.NewID()
	}
	return r.store.Save(ctx, ports.CollectionInstruments, in.ToJSON(), nil)
}
