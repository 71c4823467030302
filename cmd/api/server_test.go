package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fieldtrial/adapters/docstore/memory"
	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"
	"fieldtrial/domain/phenotype"
	"fieldtrial/domain/study"
	"fieldtrial/internal/config"
	"fieldtrial/internal/container"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *container.Container) {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Driver = config.DriverMemory
	c, err := container.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, c.InitWithStore(context.Background(), memory.New()))
	t.Cleanup(func() { _ = c.Close() })
	return NewServer(c), c
}

func seed(t *testing.T, c *container.Container) {
	t.Helper()
	ctx := context.Background()
	height := &phenotype.MeasuredVariable{
		ID:         "mv-height",
		Variable:   phenotype.SchemaTerm{Name: "Height"},
		ScaleClass: phenotype.ScaleNumeric,
	}
	require.NoError(t, c.Variables.Save(ctx, height))
	require.NoError(t, c.Studies.Save(ctx, &study.Study{ID: "S", Name: "Trial"}))

	obs, _, err := observation.New(observation.Params{Phenotype: observation.Borrow(height), Corrected: 12.5}, nil)
	require.NoError(t, err)
	plot := &study.Plot{ID: "P", StudyID: "S", Rows: []*study.Row{
		{ID: "r1", Index: 1, Kind: study.RowStandard, Observations: []*observation.Observation{obs}},
		{ID: "r2", Index: 2, Kind: study.RowStandard},
	}}
	require.NoError(t, c.Plots.Save(ctx, plot))
	plot.Release()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestComputeAndReadStatistics(t *testing.T) {
	srv, c := newTestServer(t)
	seed(t, c)

	rec := do(t, srv, http.MethodPut, "/plots/P/rows/2/observations", `{"phenotype_id": "mv-height", "raw_value": 9}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/studies/S/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result map[string]any
	decode(t, rec, &result)
	assert.Equal(t, core.StatusSucceeded.String(), result["status"])
	assert.Equal(t, 1.0, result["processed"])

	rec = do(t, srv, http.MethodGet, "/studies/S/statistics?format=client_minimal", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var nodes []map[string]any
	decode(t, rec, &nodes)
	require.Len(t, nodes, 1)
	stats, ok := nodes[0]["statistics"].(map[string]any)
	require.True(t, ok, nodes[0])
	assert.Equal(t, 2.0, stats["count"])
	assert.Equal(t, 10.75, stats["mean"])
}

func TestStatisticsErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/studies/nope/statistics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "NOT_FOUND", body["error"]["code"])

	rec = do(t, srv, http.MethodGet, "/studies/nope/statistics?format=yaml", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseObservation(t *testing.T) {
	srv, c := newTestServer(t)
	seed(t, c)

	rec := do(t, srv, http.MethodPost, "/observations/parse?in=storage&out=client_full",
		`{"phenotype_id": "mv-height", "raw_value": "4.5", "date": "2022-06-01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]map[string]any
	decode(t, rec, &body)
	obs := body["observation"]
	assert.Equal(t, 4.5, obs["raw_value"])
	assert.NotContains(t, obs, "phenotype_id")
	assert.Contains(t, obs, "phenotype")

	rec = do(t, srv, http.MethodPost, "/observations/parse?in=storage", `{"raw_value": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/observations/parse", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitObservation(t *testing.T) {
	srv, c := newTestServer(t)
	seed(t, c)

	rec := do(t, srv, http.MethodPut, "/plots/P/rows/1/observations", `{"phenotype_id": "mv-height", "corrected_value": 3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result map[string]any
	decode(t, rec, &result)
	assert.Equal(t, true, result["replaced"])

	rec = do(t, srv, http.MethodPut, "/plots/P/rows/0/observations", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPut, "/plots/P/rows/7/observations", `{"phenotype_id": "mv-height"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPut, "/plots/missing/rows/1/observations", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, c := newTestServer(t)
	seed(t, c)
	do(t, srv, http.MethodPost, "/studies/S/statistics", "")

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
