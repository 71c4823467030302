package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fieldtrial/adapters/docstore/memory"
	"fieldtrial/adapters/repository"
	"fieldtrial/adapters/stats/accumulator"
	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"
	"fieldtrial/domain/phenotype"
	"fieldtrial/domain/study"
	apperrors "fieldtrial/internal/errors"
	"fieldtrial/internal/lock"
	"fieldtrial/internal/metrics"
	"fieldtrial/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore fails selected operations of the wrapped store
type failingStore struct {
	ports.DocumentStore
	failFind bool
	failSave string
}

var errBoom = errors.New("boom")

func (f *failingStore) Find(ctx context.Context, coll string, filter core.Filter) ([]core.Document, error) {
	if f.failFind {
		return nil, core.NewStoreError("find", coll, errBoom)
	}
	return f.DocumentStore.Find(ctx, coll, filter)
}

func (f *failingStore) Save(ctx context.Context, coll string, doc core.Document, upsert core.Filter) error {
	if f.failSave == coll {
		return core.NewStoreError("save", coll, errBoom)
	}
	return f.DocumentStore.Save(ctx, coll, doc, upsert)
}

type fixture struct {
	store     *failingStore
	studies   ports.StudyRepository
	plots     ports.PlotRepository
	variables *repository.VariableRepositoryImpl
	cache     *phenotype.Cache
	resolver  *repository.Resolver
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &failingStore{DocumentStore: memory.New()}
	variables := repository.NewVariableRepository(store)
	cache := phenotype.NewCache(variables)
	resolver := repository.NewResolver(cache, repository.NewInstrumentRepository(store))
	reg := prometheus.NewRegistry()
	return &fixture{
		store:     store,
		studies:   repository.NewStudyRepository(store),
		plots:     repository.NewPlotRepository(store, resolver),
		variables: variables,
		cache:     cache,
		resolver:  resolver,
		registry:  reg,
		metrics:   metrics.New(reg),
	}
}

// counter reads a single-label counter from the fixture registry
func (f *fixture) counter(t *testing.T, name, label string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func (f *fixture) service(capacity int, opts StatisticsOptions) *StatisticsService {
	if opts.Metrics == nil {
		opts.Metrics = f.metrics
	}
	return NewStatisticsService(f.studies, f.plots, f.variables, accumulator.Factory(capacity), opts)
}

func (f *fixture) variable(t *testing.T, id core.ID, name string, scale phenotype.ScaleClass) *phenotype.MeasuredVariable {
	t.Helper()
	mv := &phenotype.MeasuredVariable{
		ID:         id,
		Trait:      phenotype.SchemaTerm{Name: name},
		Variable:   phenotype.SchemaTerm{Name: name},
		ScaleClass: scale,
	}
	require.NoError(t, f.variables.Save(context.Background(), mv))
	return mv
}

func (f *fixture) study(t *testing.T, id core.ID) *study.Study {
	t.Helper()
	st := &study.Study{ID: id, Name: "Trial " + id.String()}
	require.NoError(t, f.studies.Save(context.Background(), st))
	return st
}

// plot saves a plot of the study; each row is a list of observations
func (f *fixture) plot(t *testing.T, studyID core.ID, kinds []study.RowKind, rows ...[]*observation.Observation) {
	t.Helper()
	p := &study.Plot{ID: core.NewID(), StudyID: studyID}
	for i, obs := range rows {
		kind := study.RowStandard
		if i < len(kinds) {
			kind = kinds[i]
		}
		p.Rows = append(p.Rows, &study.Row{ID: core.NewID(), Index: i + 1, Kind: kind, Observations: obs})
	}
	require.NoError(t, f.plots.Save(context.Background(), p))
	p.Release()
}

func numeric(t *testing.T, mv *phenotype.MeasuredVariable, raw, corrected any) *observation.Observation {
	t.Helper()
	obs, _, err := observation.New(observation.Params{
		Phenotype: observation.Borrow(mv),
		Raw:       raw,
		Corrected: corrected,
	}, nil)
	require.NoError(t, err)
	return obs
}

func row(obs ...*observation.Observation) []*observation.Observation { return obs }

func TestComputeStudyStatisticsHeightScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	height := f.variable(t, "mv-height", "Height", phenotype.ScaleNumeric)
	f.study(t, "S")
	f.plot(t, "S", nil, row(numeric(t, height, nil, 12.5)))
	f.plot(t, "S", nil, row(numeric(t, height, 9.0, nil)))

	result, err := f.service(0, StatisticsOptions{}).Run(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, core.StatusSucceeded, result.Status)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Failed)

	saved, err := f.studies.GetByID(ctx, "S")
	require.NoError(t, err)
	require.Len(t, saved.PhenotypeStatistics, 1)
	node := saved.PhenotypeStatistics[0]
	assert.Equal(t, "Height", node.Name)
	assert.Equal(t, core.ID("mv-height"), node.PhenotypeID)
	require.NotNil(t, node.Statistics)
	assert.Equal(t, 2, node.Statistics.Count)
	assert.InDelta(t, 10.75, node.Statistics.Mean, 1e-9)
	assert.InDelta(t, 9.0, node.Statistics.Min, 1e-9)
	assert.InDelta(t, 12.5, node.Statistics.Max, 1e-9)

	assert.Equal(t, 1.0, f.counter(t, "fieldtrial_statistics_runs_total", "succeeded"))
	assert.Zero(t, f.cache.Len(), "loaded tree is released")
}

func TestComputeStudyStatisticsIgnoresDiscardRowsAndUsesFirstMatch(t *testing.T) {
	f := newFixture(t)
	height := f.variable(t, "mv-height", "Height", phenotype.ScaleNumeric)
	st := f.study(t, "S")
	f.plot(t, "S", []study.RowKind{study.RowStandard, study.RowDiscard},
		row(numeric(t, height, 4.0, nil), numeric(t, height, 100.0, nil)),
		row(numeric(t, height, 1000.0, nil)),
	)

	result, err := f.service(0, StatisticsOptions{}).ComputeStudyStatistics(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSucceeded, result.Status)
	require.Len(t, st.PhenotypeStatistics, 1)
	stats := st.PhenotypeStatistics[0].Statistics
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Count)
	assert.InDelta(t, 4.0, stats.Mean, 1e-9)
	st.Release()
}

func TestComputeStudyStatisticsWithoutPlotsSucceedsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.study(t, "empty")
	st.PhenotypeStatistics = []study.PhenotypeStatistics{{PhenotypeID: "old", Name: "stale"}}
	require.NoError(t, f.studies.Save(ctx, st))

	result, err := f.service(0, StatisticsOptions{}).ComputeStudyStatistics(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSucceeded, result.Status)
	assert.Empty(t, st.PhenotypeStatistics)
	assert.Empty(t, st.PhenotypeStatisticsJSON(core.ViewClientFull))

	stored, err := f.studies.GetByID(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, stored.PhenotypeStatistics, "stale results are cleared in storage")
}

func TestComputeStudyStatisticsWithoutPlotsSaveFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	st := f.study(t, "empty")
	f.store.failSave = ports.CollectionStudies

	result, err := f.service(0, StatisticsOptions{}).ComputeStudyStatistics(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, core.StatusPartiallySucceeded, result.Status)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))
}

func TestComputeStudyStatisticsEmitsPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	height := f.variable(t, "mv-height", "Height", phenotype.ScaleNumeric)
	weight := f.variable(t, "mv-weight", "Weight", phenotype.ScaleNumeric)
	f.study(t, "S")
	f.plot(t, "S", []study.RowKind{study.RowStandard, study.RowDiscard},
		row(numeric(t, height, 1.0, nil)),
		row(numeric(t, weight, 2.0, nil)),
	)

	svc := f.service(0, StatisticsOptions{})
	result, err := svc.Run(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, core.StatusSucceeded, result.Status)
	assert.Equal(t, 2, result.Processed)

	out, err := svc.PhenotypeStatisticsJSON(ctx, "S", core.ViewClientMinimal)
	require.NoError(t, err)
	require.Len(t, out, 2)
	byName := map[string]core.Document{}
	for _, item := range out {
		doc := item.(core.Document)
		byName[doc["name"].(string)] = doc
	}
	require.Contains(t, byName, "Weight")
	assert.Nil(t, byName["Weight"][study.KeyStatistics])
	assert.Equal(t, "mv-weight", byName["Weight"]["phenotype"].(core.Document)[core.KeyID])
	assert.NotNil(t, byName["Height"][study.KeyStatistics])
}

func TestComputeStudyStatisticsPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var obs []*observation.Observation
	for _, id := range []core.ID{"a", "b", "c"} {
		mv := f.variable(t, id, "var "+id.String(), phenotype.ScaleNumeric)
		obs = append(obs, numeric(t, mv, 1.0, nil))
	}
	// referenced by plots but never registered
	for _, id := range []core.ID{"ghost-1", "ghost-2"} {
		mv := &phenotype.MeasuredVariable{ID: id, Variable: phenotype.SchemaTerm{Name: "ghost"}, ScaleClass: phenotype.ScaleNumeric}
		obs = append(obs, numeric(t, mv, 1.0, nil))
	}
	f.study(t, "S")
	f.plot(t, "S", nil, obs)

	result, err := f.service(0, StatisticsOptions{}).Run(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPartiallySucceeded, result.Status)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	for _, failure := range result.Failures {
		assert.Contains(t, []core.ID{"ghost-1", "ghost-2"}, failure.PhenotypeID)
	}

	saved, err := f.studies.GetByID(ctx, "S")
	require.NoError(t, err)
	assert.Len(t, saved.PhenotypeStatistics, 3)
	assert.Equal(t, 2.0, f.counter(t, "fieldtrial_statistics_variables_total", metrics.OutcomeFailed))
}

func TestComputeStudyStatisticsAllVariablesFailing(t *testing.T) {
	f := newFixture(t)
	ghost := &phenotype.MeasuredVariable{ID: "ghost", Variable: phenotype.SchemaTerm{Name: "ghost"}, ScaleClass: phenotype.ScaleNumeric}
	st := f.study(t, "S")
	f.plot(t, "S", nil, row(numeric(t, ghost, 1.0, nil)))
	f.store.failSave = ports.CollectionStudies

	result, err := f.service(0, StatisticsOptions{}).ComputeStudyStatistics(context.Background(), st)
	require.NoError(t, err, "nothing to save when no variable was processed")
	assert.Equal(t, core.StatusFailed, result.Status)
	st.Release()
}

func TestComputeStudyStatisticsSkipsNonNumericVariables(t *testing.T) {
	f := newFixture(t)
	note := f.variable(t, "mv-note", "Note", phenotype.ScaleText)
	height := f.variable(t, "mv-height", "Height", phenotype.ScaleNumeric)
	text, _, err := observation.New(observation.Params{Phenotype: observation.Borrow(note), Raw: "lodged"}, nil)
	require.NoError(t, err)
	st := f.study(t, "S")
	f.plot(t, "S", nil, row(text, numeric(t, height, 3.0, nil)))

	result, err := f.service(0, StatisticsOptions{}).ComputeStudyStatistics(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSucceeded, result.Status)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, st.PhenotypeStatistics, 1)
	assert.Equal(t, "Height", st.PhenotypeStatistics[0].Name)
	st.Release()
}

func TestComputeStudyStatisticsSaveFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	height := f.variable(t, "mv-height", "Height", phenotype.ScaleNumeric)
	st := f.study(t, "S")
	f.plot(t, "S", nil, row(numeric(t, height, 3.0, nil)))
	f.store.failSave = ports.CollectionStudies

	result, err := f.service(0, StatisticsOptions{}).ComputeStudyStatistics(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, core.StatusPartiallySucceeded, result.Status)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))
	assert.Len(t, st.PhenotypeStatistics, 1, "results stay attached in memory")
	st.Release()
}

func TestComputeStudyStatisticsPlotFetchFailure(t *testing.T) {
	f := newFixture(t)
	st := f.study(t, "S")
	f.store.failFind = true

	result, err := f.service(0, StatisticsOptions{}).ComputeStudyStatistics(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, core.StatusFailed, result.Status)
	assert.True(t, errors.Is(err, errBoom) || core.IsStoreError(err))
	assert.Equal(t, 1.0, f.counter(t, "fieldtrial_statistics_runs_total", "failed"))
}

func TestComputeStudyStatisticsCapacityFailsOnlyThatVariable(t *testing.T) {
	f := newFixture(t)
	height := f.variable(t, "mv-height", "Height", phenotype.ScaleNumeric)
	weight := f.variable(t, "mv-weight", "Weight", phenotype.ScaleNumeric)
	st := f.study(t, "S")
	f.plot(t, "S", nil,
		row(numeric(t, height, 1.0, nil)),
		row(numeric(t, height, 2.0, nil), numeric(t, weight, 5.0, nil)),
	)

	result, err := f.service(1, StatisticsOptions{}).ComputeStudyStatistics(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPartiallySucceeded, result.Status)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, core.ID("mv-height"), result.Failures[0].PhenotypeID)
	assert.Contains(t, result.Failures[0].Error, core.ErrCapacityExhausted.Error())
	require.Len(t, st.PhenotypeStatistics, 1)
	assert.Equal(t, "Weight", st.PhenotypeStatistics[0].Name)
	st.Release()
}

func TestComputeStudyStatisticsCancelled(t *testing.T) {
	f := newFixture(t)
	height := f.variable(t, "mv-height", "Height", phenotype.ScaleNumeric)
	st := f.study(t, "S")
	f.plot(t, "S", nil, row(numeric(t, height, 1.0, nil)))
	plots, err := f.plots.ListByStudy(context.Background(), "S", nil)
	require.NoError(t, err)
	st.Plots = plots
	defer st.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewStatisticsService(f.studies, &countingPlots{PlotRepository: f.plots}, f.variables, accumulator.Factory(0), StatisticsOptions{})
	result, err := svc.ComputeStudyStatistics(ctx, st)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, core.StatusFailed, result.Status)
	assert.Equal(t, 1, result.Failed)
}

// countingPlots ignores cancellation for the distinct query so the loop sees it
type countingPlots struct {
	ports.PlotRepository
}

func (c *countingPlots) DistinctPhenotypeIDs(_ context.Context, studyID core.ID) ([]core.ID, error) {
	return c.PlotRepository.DistinctPhenotypeIDs(context.Background(), studyID)
}

func TestRunSerialisesPerStudy(t *testing.T) {
	f := newFixture(t)
	height := f.variable(t, "mv-height", "Height", phenotype.ScaleNumeric)
	f.study(t, "S")
	f.plot(t, "S", nil, row(numeric(t, height, 1.0, nil)))

	locker := lock.NewLocal()
	unlock, err := locker.Lock(context.Background(), "S")
	require.NoError(t, err)

	svc := f.service(0, StatisticsOptions{Locker: locker, Timeout: 50 * time.Millisecond})
	_, err = svc.Run(context.Background(), "S")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.GetCode(err))
	unlock()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.service(0, StatisticsOptions{Locker: locker}).Run(context.Background(), "S")
			assert.NoError(t, err)
			assert.Equal(t, core.StatusSucceeded, result.Status)
		}()
	}
	wg.Wait()
}

func TestRunUnknownStudy(t *testing.T) {
	f := newFixture(t)
	_, err := f.service(0, StatisticsOptions{}).Run(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}
