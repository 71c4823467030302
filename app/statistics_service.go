package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"
	"fieldtrial/domain/study"
	apperrors "fieldtrial/internal/errors"
	"fieldtrial/internal/logging"
	"fieldtrial/internal/metrics"
	"fieldtrial/ports"
)

// StatisticsService computes per-variable descriptive statistics for studies
type StatisticsService struct {
	studies   ports.StudyRepository
	plots     ports.PlotRepository
	variables ports.VariableRepository
	newAcc    ports.AccumulatorFactory
	locker    ports.StudyLocker
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// StatisticsOptions holds the optional collaborators of a StatisticsService
type StatisticsOptions struct {
	Locker  ports.StudyLocker
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// VariableFailure records why a distinct variable produced no result
type VariableFailure struct {
	PhenotypeID core.ID `json:"phenotype_id"`
	Error       string  `json:"error"`
}

// StatisticsResult summarises one statistics run
type StatisticsResult struct {
	StudyID   core.ID              `json:"study_id"`
	Status    core.OperationStatus `json:"status"`
	Processed int                  `json:"processed"`
	Failed    int                  `json:"failed"`
	Skipped   int                  `json:"skipped"`
	Variables int                  `json:"variables"`
	Failures  []VariableFailure    `json:"failures,omitempty"`
	Elapsed   time.Duration        `json:"elapsed"`
}

// NewStatisticsService creates a statistics service
func NewStatisticsService(
	studies ports.StudyRepository,
	plots ports.PlotRepository,
	variables ports.VariableRepository,
	newAcc ports.AccumulatorFactory,
	opts StatisticsOptions,
) *StatisticsService {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &StatisticsService{
		studies:   studies,
		plots:     plots,
		variables: variables,
		newAcc:    newAcc,
		locker:    opts.Locker,
		timeout:   opts.Timeout,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// Run loads a study, computes its statistics and releases the loaded tree. Runs on the
// same study are serialised when a locker is configured.
func (s *StatisticsService) Run(ctx context.Context, studyID core.ID) (*StatisticsResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, studyID)
		if err != nil {
			return nil, apperrors.WithCode(apperrors.CodeConflict, err)
		}
		defer unlock()
	}

	st, err := s.studies.GetByID(ctx, studyID)
	if err != nil {
		return nil, apperrors.Wrapf(err, "load study %s", studyID)
	}
	defer st.Release()

	result, err := s.ComputeStudyStatistics(ctx, st)
	if errors.Is(err, context.DeadlineExceeded) {
		return result, apperrors.Timeout("study statistics", err)
	}
	return result, err
}

// ComputeStudyStatistics produces one result node per distinct measured variable
// observed under the study and saves the study with the nodes attached.
//
// Numeric variables always get a node; it carries no statistics when no value was
// found. Non-numeric variables are skipped. A variable whose lookup fails, or whose
// values overflow the accumulator, gets no node and counts as failed.
func (s *StatisticsService) ComputeStudyStatistics(ctx context.Context, st *study.Study) (*StatisticsResult, error) {
	start := time.Now()
	result := &StatisticsResult{StudyID: st.ID, Status: core.StatusFailed}
	log := s.logger.With("study_id", st.ID.String())
	defer func() {
		result.Elapsed = time.Since(start)
		s.metrics.RunFinished(result.Status.String(), result.Elapsed)
		log.Info("study statistics finished",
			"status", result.Status.String(),
			"processed", result.Processed,
			"failed", result.Failed,
			"elapsed", result.Elapsed)
	}()

	if !st.HasPlots() {
		plots, err := s.plots.ListByStudy(ctx, st.ID, s.fieldErrorSink(log))
		if err != nil {
			log.Error("failed to load plots", "error", err)
			return result, apperrors.Wrapf(err, "load plots of study %s", st.ID)
		}
		st.Plots = plots
	}
	if !st.HasPlots() {
		// clear results stored by earlier runs
		st.ResetStatistics()
		result.Status = core.StatusSucceeded
		if err := s.studies.Save(ctx, st); err != nil {
			log.Error("failed to save study statistics", "error", err)
			result.Status = core.StatusPartiallySucceeded
			return result, apperrors.Wrapf(err, "save study %s", st.ID)
		}
		return result, nil
	}

	ids, err := s.plots.DistinctPhenotypeIDs(ctx, st.ID)
	if err != nil {
		log.Error("failed to list distinct variables", "error", err)
		return result, apperrors.Wrapf(err, "distinct variables of study %s", st.ID)
	}
	result.Variables = len(ids)
	log.Debug("distinct variables found", "count", len(ids))

	st.ResetStatistics()
	acc := s.newAcc()
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			// unvisited variables count as failed
			result.Failed += len(ids) - i
			result.Status = core.StatusFromTally(result.Processed, result.Failed)
			log.Warn("statistics run interrupted", "remaining", len(ids)-i, "error", err)
			return result, err
		}

		node, outcome, err := s.variableStatistics(ctx, st, id, acc)
		s.metrics.Variable(outcome)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, VariableFailure{PhenotypeID: id, Error: err.Error()})
			log.Warn("variable statistics failed", "phenotype_id", id.String(), "error", err)
			continue
		}
		result.Processed++
		if node == nil {
			result.Skipped++
			continue
		}
		st.AddStatistics(*node)
	}
	result.Status = core.StatusFromTally(result.Processed, result.Failed)

	if result.Processed == 0 && len(ids) > 0 {
		return result, nil
	}
	if err := s.studies.Save(ctx, st); err != nil {
		log.Error("failed to save study statistics", "error", err)
		result.Status = core.StatusPartiallySucceeded
		return result, apperrors.Wrapf(err, "save study %s", st.ID)
	}
	return result, nil
}

// variableStatistics builds the node of one variable. A nil node with a nil error means
// the variable was skipped.
func (s *StatisticsService) variableStatistics(ctx context.Context, st *study.Study, id core.ID, acc ports.Accumulator) (*study.PhenotypeStatistics, string, error) {
	mv, err := s.variables.GetByID(ctx, id)
	if err != nil {
		return nil, metrics.OutcomeFailed, fmt.Errorf("load measured variable %s: %w", id, err)
	}
	if observation.Resolve(mv.ScaleClass) != observation.KindNumeric {
		s.logger.Trace("skipping non-numeric variable", "phenotype_id", id.String(), "scale", mv.ScaleClass.String())
		return nil, metrics.OutcomeSkipped, nil
	}

	acc.Reset()
	n, err := collectValues(st, id, acc)
	s.metrics.ValuesAccumulated(n)
	if err != nil {
		return nil, metrics.OutcomeFailed, fmt.Errorf("variable %s: %w", mv.Name(), err)
	}

	node := &study.PhenotypeStatistics{PhenotypeID: id, Name: mv.Name(), Variable: mv}
	if n == 0 {
		return node, metrics.OutcomePlaceholder, nil
	}
	node.Statistics, err = acc.Compute()
	if err != nil {
		return nil, metrics.OutcomeFailed, fmt.Errorf("compute %s: %w", mv.Name(), err)
	}
	return node, metrics.OutcomeComputed, nil
}

// collectValues feeds the preferred value of the first matching observation on every
// standard row into acc and returns how many values were added
func collectValues(st *study.Study, id core.ID, acc ports.Accumulator) (int, error) {
	n := 0
	for _, plot := range st.Plots {
		for _, row := range plot.Rows {
			if !row.IsStandard() {
				continue
			}
			obs := row.FindObservation(id)
			if obs == nil {
				continue
			}
			num, ok := obs.Value().(*observation.NumericValue)
			if !ok {
				continue
			}
			x, ok := num.Preferred()
			if !ok {
				continue
			}
			if err := acc.Add(x); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// PhenotypeStatisticsJSON renders the stored statistics of a study. Client views embed
// the measured variables; a variable that can no longer be loaded is referenced by id.
func (s *StatisticsService) PhenotypeStatisticsJSON(ctx context.Context, studyID core.ID, format core.ViewFormat) ([]any, error) {
	st, err := s.studies.GetByID(ctx, studyID)
	if err != nil {
		return nil, apperrors.Wrapf(err, "load study %s", studyID)
	}
	if format.IsClient() {
		for i := range st.PhenotypeStatistics {
			node := &st.PhenotypeStatistics[i]
			mv, err := s.variables.GetByID(ctx, node.PhenotypeID)
			if err != nil {
				s.logger.Warn("measured variable unavailable for statistics view",
					"phenotype_id", node.PhenotypeID.String(), "error", err)
				continue
			}
			node.Variable = mv
		}
	}
	return st.PhenotypeStatisticsJSON(format), nil
}

func (s *StatisticsService) fieldErrorSink(log *logging.Logger) observation.ErrorSink {
	return observation.SinkFunc(func(fe *observation.FieldError) {
		s.metrics.FieldError(fe.Field)
		log.Warn("observation skipped while loading plots", "location", fe.Location, "field", fe.Field, "error", fe.Err)
	})
}
