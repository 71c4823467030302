package app

import (
	"context"
	"fmt"

	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"
	apperrors "fieldtrial/internal/errors"
	"fieldtrial/internal/logging"
	"fieldtrial/internal/metrics"
	"fieldtrial/ports"
)

// ObservationService reads, renders and stores single observations
type ObservationService struct {
	plots    ports.PlotRepository
	resolver observation.Resolver
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// SubmitResult is the outcome of storing one observation on a row
type SubmitResult struct {
	Observation core.Document             `json:"observation"`
	Replaced    bool                      `json:"replaced"`
	FieldErrors []*observation.FieldError `json:"field_errors,omitempty"`
}

// NewObservationService creates an observation service
func NewObservationService(plots ports.PlotRepository, resolver observation.Resolver, m *metrics.Metrics, logger *logging.Logger) *ObservationService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ObservationService{plots: plots, resolver: resolver, metrics: m, logger: logger}
}

// Parse builds an observation from a document in the given view format. The storage
// view must reference its variable by id. Value failures are reported to sink and
// returned alongside the observation.
func (s *ObservationService) Parse(ctx context.Context, doc core.Document, format core.ViewFormat, sink observation.ErrorSink) (*observation.Observation, []*observation.FieldError, error) {
	if format == core.ViewStorage {
		if _, ok := core.IDFromValue(doc[observation.KeyPhenotypeID]); !ok {
			return nil, nil, apperrors.Wrap(core.NewValidationError(observation.KeyPhenotypeID, "missing"), "parse observation")
		}
	}
	obs, fieldErrs, err := observation.FromJSON(ctx, doc, s.resolver, s.counting(sink))
	if err != nil {
		return nil, fieldErrs, apperrors.Wrap(err, "parse observation")
	}
	return obs, fieldErrs, nil
}

// Render renders an observation in the given view format
func (s *ObservationService) Render(obs *observation.Observation, format core.ViewFormat) core.Document {
	return obs.ToJSON(format)
}

// Submit stores an observation on a row of a plot. An observation recording the same
// measurement slot is replaced; otherwise the observation is appended.
func (s *ObservationService) Submit(ctx context.Context, plotID core.ID, rowIndex int, doc core.Document, sink observation.ErrorSink) (*SubmitResult, error) {
	plot, err := s.plots.GetByID(ctx, plotID, sink)
	if err != nil {
		return nil, apperrors.Wrapf(err, "load plot %s", plotID)
	}
	defer plot.Release()

	row := plot.Row(rowIndex)
	if row == nil {
		return nil, apperrors.Wrap(fmt.Errorf("%w: plot %s row %d", core.ErrRowNotFound, plotID, rowIndex), "submit observation")
	}

	obs, fieldErrs, err := s.Parse(ctx, doc, core.ViewClientFull, sink)
	if err != nil {
		return &SubmitResult{FieldErrors: fieldErrs}, err
	}
	replaced, err := row.Upsert(obs)
	if err != nil {
		obs.Release()
		return &SubmitResult{FieldErrors: fieldErrs}, apperrors.Wrap(err, "submit observation")
	}
	if err := s.plots.Save(ctx, plot); err != nil {
		return &SubmitResult{FieldErrors: fieldErrs}, apperrors.Wrapf(err, "save plot %s", plotID)
	}

	s.logger.Debug("observation stored",
		"plot_id", plotID.String(),
		"row", rowIndex,
		"phenotype_id", obs.PhenotypeID().String(),
		"replaced", replaced)
	return &SubmitResult{
		Observation: obs.ToJSON(core.ViewClientFull),
		Replaced:    replaced,
		FieldErrors: fieldErrs,
	}, nil
}

func (s *ObservationService) counting(sink observation.ErrorSink) observation.ErrorSink {
	return observation.SinkFunc(func(fe *observation.FieldError) {
		s.metrics.FieldError(fe.Field)
		if sink != nil {
			sink.Report(fe)
		}
	})
}
