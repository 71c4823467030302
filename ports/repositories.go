package ports

import (
	"context"

	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"
	"fieldtrial/domain/phenotype"
	"fieldtrial/domain/study"
)

// StudyRepository loads and persists studies
type StudyRepository interface {
	GetByID(ctx context.Context, id core.ID) (*study.Study, error)
	Save(ctx context.Context, s *study.Study) error
	List(ctx context.Context) ([]*study.Study, error)
}

// PlotRepository loads and persists plots with their rows and observations
type PlotRepository interface {
	GetByID(ctx context.Context, id core.ID, sink observation.ErrorSink) (*study.Plot, error)
	ListByStudy(ctx context.Context, studyID core.ID, sink observation.ErrorSink) ([]*study.Plot, error)
	Save(ctx context.Context, p *study.Plot) error

	// DistinctPhenotypeIDs returns the ids of every measured variable observed anywhere
	// under the study, computed by the store
	DistinctPhenotypeIDs(ctx context.Context, studyID core.ID) ([]core.ID, error)
}

// VariableRepository loads and persists measured variables
type VariableRepository interface {
	GetByID(ctx context.Context, id core.ID) (*phenotype.MeasuredVariable, error)
	FindByName(ctx context.Context, name string) (*phenotype.MeasuredVariable, error)
	Save(ctx context.Context, mv *phenotype.MeasuredVariable) error
}

// InstrumentRepository loads and persists instruments
type InstrumentRepository interface {
	GetByID(ctx context.Context, id core.ID) (*phenotype.Instrument, error)
	Save(ctx context.Context, in *phenotype.Instrument) error
}
