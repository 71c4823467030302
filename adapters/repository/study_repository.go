// Package repository maps the study tree onto a ports.DocumentStore
package repository

import (
	"context"
	"fmt"

	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"
	"fieldtrial/domain/study"
	"fieldtrial/ports"
)

// StudyRepositoryImpl implements ports.StudyRepository
type StudyRepositoryImpl struct {
	store ports.DocumentStore
}

// NewStudyRepository creates a study repository on store
func NewStudyRepository(store ports.DocumentStore) ports.StudyRepository {
	return &StudyRepositoryImpl{store: store}
}

func (r *StudyRepositoryImpl) GetByID(ctx context.Context, id core.ID) (*study.Study, error) {
	doc, err := r.store.FindByID(ctx, ports.CollectionStudies, id)
	if err != nil {
		if core.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %w", core.ErrStudyNotFound, err)
		}
		return nil, err
	}
	return study.FromJSON(doc)
}

func (r *StudyRepositoryImpl) Save(ctx context.Context, s *study.Study) error {
	if s.ID.IsEmpty() {
		s.ID = core.NewID()
	}
	return r.store.Save(ctx, ports.CollectionStudies, s.ToJSON(core.ViewStorage), nil)
}

func (r *StudyRepositoryImpl) List(ctx context.Context) ([]*study.Study, error) {
	docs, err := r.store.Find(ctx, ports.CollectionStudies, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*study.Study, 0, len(docs))
	for _, doc := range docs {
		s, err := study.FromJSON(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// PlotRepositoryImpl implements ports.PlotRepository. Observations are rebuilt through
// resolver, which decides how they hold their measured variables.
type PlotRepositoryImpl struct {
	store    ports.DocumentStore
	resolver observation.Resolver
}

// NewPlotRepository creates a plot repository on store
func NewPlotRepository(store ports.DocumentStore, resolver observation.Resolver) ports.PlotRepository {
	return &PlotRepositoryImpl{store: store, resolver: resolver}
}

// PhenotypeIDPath is where observations keep their variable id inside a plot document
const PhenotypeIDPath = study.KeyRows + "." + study.KeyObservations + "." + observation.KeyPhenotypeID

func (r *PlotRepositoryImpl) GetByID(ctx context.Context, id core.ID, sink observation.ErrorSink) (*study.Plot, error) {
	doc, err := r.store.FindByID(ctx, ports.CollectionPlots, id)
	if err != nil {
		if core.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %w", core.ErrPlotNotFound, err)
		}
		return nil, err
	}
	return study.PlotFromJSON(ctx, doc, r.resolver, sink)
}

func (r *PlotRepositoryImpl) ListByStudy(ctx context.Context, studyID core.ID, sink observation.ErrorSink) ([]*study.Plot, error) {
	docs, err := r.store.Find(ctx, ports.CollectionPlots, core.Filter{study.KeyParentStudyID: studyID.String()})
	if err != nil {
		return nil, err
	}
	plots := make([]*study.Plot, 0, len(docs))
	for _, doc := range docs {
		p, err := study.PlotFromJSON(ctx, doc, r.resolver, sink)
		if err != nil {
			for _, loaded := range plots {
				loaded.Release()
			}
			return nil, err
		}
		plots = append(plots, p)
	}
	return plots, nil
}

func (r *PlotRepositoryImpl) Save(ctx context.Context, p *study.Plot) error {
	if p.ID.IsEmpty() {
		p.ID = core.NewID()
	}
	return r.store.Save(ctx, ports.CollectionPlots, p.ToJSON(core.ViewStorage), nil)
}

func (r *PlotRepositoryImpl) DistinctPhenotypeIDs(ctx context.Context, studyID core.ID) ([]core.ID, error) {
	values, err := r.store.FindDistinct(ctx, ports.CollectionPlots, PhenotypeIDPath,
		core.Filter{study.KeyParentStudyID: studyID.String()})
	if err != nil {
		return nil, err
	}
	ids := make([]core.ID, 0, len(values))
	for _, v := range values {
		if id, ok := core.IDFromValue(v); ok && !id.IsEmpty() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
