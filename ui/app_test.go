package ui

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/adapters/stats/anomaly"
	"sentinel/adapters/stats/correlation"
	"sentinel/adapters/stats/profile"
	"sentinel/adapters/stats/temporal"
	"sentinel/internal/analysis/insight"
	"sentinel/internal/analysis/rootcause"
	"sentinel/internal/config"
	"sentinel/internal/dataset"
	apperrors "sentinel/internal/errors"
	"sentinel/internal/testkit"
	"sentinel/ports"
)

func newTestApp(t *testing.T, load bool) (*App, *dataset.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.Data.UploadDir = ""
	store := dataset.NewStore(func() ports.OutlierDetector {
		fc := anomaly.DefaultForestConfig()
		fc.Trees = 20
		return anomaly.NewIsolationForest(fc)
	}, nil)
	if load {
		gen := testkit.DefaultManufacturingConfig()
		gen.Rows = 300
		tbl, err := testkit.GenerateManufacturing(gen)
		require.NoError(t, err)
		store.Replace(tbl, "sample")
	}
	return NewApp(cfg, store, nil), store
}

func do(t *testing.T, app *App, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t, false)
	rec := do(t, app, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDataRoutes_UnavailableWithoutSnapshot(t *testing.T) {
	app, _ := newTestApp(t, false)
	for _, target := range []string{
		"/api/data/overview",
		"/api/data/columns",
		"/api/data/sample",
		"/api/dashboard/stats",
		"/api/analysis/anomalies",
		"/api/report",
	} {
		rec := do(t, app, http.MethodGet, target, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
		body := decode[errorBody](t, rec)
		assert.Equal(t, apperrors.CodeDataUnavailable, body.Code, target)
		assert.Equal(t, "Data not loaded", body.Error, target)
	}
}

func TestOverviewColumnsAndSample(t *testing.T) {
	app, _ := newTestApp(t, true)

	overview := decode[profile.Overview](t, do(t, app, http.MethodGet, "/api/data/overview", ""))
	assert.Equal(t, 300, overview.RowCount)
	assert.Contains(t, overview.NumericColumns, "temperature")
	require.NotNil(t, overview.DateRange)

	columns := decode[[]profile.ColumnProfile](t, do(t, app, http.MethodGet, "/api/data/columns", ""))
	assert.Len(t, columns, overview.ColumnCount)

	sample := decode[profile.SampleResult](t, do(t, app, http.MethodGet, "/api/data/sample?limit=5", ""))
	assert.Equal(t, 5, sample.Count)
	assert.Equal(t, "2024-01-01 00:00:00", sample.Data[0]["timestamp"])

	rec := do(t, app, http.MethodGet, "/api/data/sample?limit=five", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardStats(t *testing.T) {
	app, _ := newTestApp(t, true)
	stats := decode[profile.DashboardStats](t, do(t, app, http.MethodGet, "/api/dashboard/stats", ""))
	assert.Equal(t, 300, stats.TotalRecords)
	require.NotNil(t, stats.Defects)
	assert.NotEmpty(t, stats.LineDistribution)
}

func TestTimeSeries(t *testing.T) {
	app, _ := newTestApp(t, true)

	series := decode[temporal.Series](t, do(t, app, http.MethodGet,
		"/api/time-series?group_by=day&start_date=2024-01-02&end_date=2024-01-03", ""))
	assert.Equal(t, "defect_count", series.Column)
	assert.Equal(t, temporal.Day, series.GroupBy)
	require.NotEmpty(t, series.Data)
	assert.Equal(t, "2024-01-02", series.Data[0].Timestamp)

	fallback := decode[temporal.Series](t, do(t, app, http.MethodGet, "/api/time-series?group_by=month", ""))
	assert.Equal(t, temporal.Hour, fallback.GroupBy)

	rec := do(t, app, http.MethodGet, "/api/time-series?column=humidity", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeColumnNotFound, decode[errorBody](t, rec).Code)

	rec = do(t, app, http.MethodGet, "/api/time-series?start_date=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCorrelations(t *testing.T) {
	app, _ := newTestApp(t, true)
	res := decode[correlation.Result](t, do(t, app, http.MethodGet, "/api/analysis/correlations?threshold=0.1", ""))
	assert.Equal(t, 0.1, res.Threshold)
	for _, p := range res.Correlations {
		assert.GreaterOrEqual(t, p.AbsCorrelation, 0.1)
	}

	for _, threshold := range []string{"NaN", "Inf", "-Inf", "high"} {
		for _, target := range []string{"/api/analysis/correlations", "/api/report"} {
			rec := do(t, app, http.MethodGet, target+"?threshold="+threshold, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, target+" "+threshold)
			assert.Equal(t, apperrors.CodeInvalidInput, decode[errorBody](t, rec).Code)
		}
	}
}

func TestAnomaliesAndFeatures(t *testing.T) {
	app, _ := newTestApp(t, true)

	rep := decode[anomaly.Report](t, do(t, app, http.MethodGet, "/api/analysis/anomalies?limit=5", ""))
	assert.True(t, rep.Trained)
	assert.LessOrEqual(t, len(rep.Anomalies), 5)
	assert.Positive(t, rep.TotalAnomalies)

	breakdown := decode[anomaly.Breakdown](t, do(t, app, http.MethodGet, "/api/analysis/anomalies/3/features", ""))
	assert.Equal(t, 3, breakdown.Index)
	assert.NotEmpty(t, breakdown.Features)

	rec := do(t, app, http.MethodGet, "/api/analysis/anomalies/3000/features", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, app, http.MethodGet, "/api/analysis/anomalies/x/features", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRootCause(t *testing.T) {
	app, _ := newTestApp(t, true)

	all := decode[rootcause.Result](t, do(t, app, http.MethodPost, "/api/analysis/root-cause", `{}`))
	assert.Equal(t, 300, all.TotalIssues)

	narrowed := decode[rootcause.Result](t, do(t, app, http.MethodPost, "/api/analysis/root-cause",
		`{"issue_type": "Dimensional", "filters": {"production_line": "Line A"}}`))
	assert.Less(t, narrowed.TotalIssues, all.TotalIssues)
	assert.Positive(t, narrowed.TotalIssues)

	rec := do(t, app, http.MethodPost, "/api/analysis/root-cause", `{"filters": {"start_date": "never"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, app, http.MethodPost, "/api/analysis/root-cause", `{"filters":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeInvalidInput, decode[errorBody](t, rec).Code)
}

func TestInsights(t *testing.T) {
	app, _ := newTestApp(t, true)
	res := decode[insight.Result](t, do(t, app, http.MethodPost, "/api/insights/generate", `{"filters": {}}`))
	assert.Equal(t, len(res.Insights), res.TotalInsights)
	for i := 1; i < len(res.Insights); i++ {
		assert.GreaterOrEqual(t, res.Insights[i-1].Score, res.Insights[i].Score)
	}
}

func TestSuggestActions(t *testing.T) {
	app, _ := newTestApp(t, false)

	plan := decode[insight.ActionPlan](t, do(t, app, http.MethodPost, "/api/actions/suggest",
		`{"root_cause": {"type": "equipment", "description": "Equipment Correlation Analysis", "findings": [], "confidence": 0.8}}`))
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, "Equipment Maintenance", plan.Actions[0].Action)
	assert.Len(t, plan.Actions[0].Steps, 4)

	rec := do(t, app, http.MethodPost, "/api/actions/suggest", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportFormats(t *testing.T) {
	app, _ := newTestApp(t, true)

	rec := do(t, app, http.MethodGet, "/api/report?format=markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, rec.Body.String(), "## Root Causes")

	rec = do(t, app, http.MethodGet, "/api/report?format=html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>Manufacturing Quality Report</title>")

	rec = do(t, app, http.MethodGet, "/api/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.NotEmpty(t, body["id"])
	assert.Contains(t, body, "root_cause")

	rec = do(t, app, http.MethodGet, "/api/report?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartUpload(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/data/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const uploadCSV = "timestamp,machine_id,defect_count,Nominal,Measured Value\n" +
	"2024-03-01 08:00:00,M001,2,10,10.5\n" +
	"2024-03-01 09:00:00,M002,0,10,9.75\n" +
	"2024-03-01 10:00:00,M001,3,10,11\n"

func TestUpload_ReplacesSnapshot(t *testing.T) {
	app, store := newTestApp(t, true)
	before, err := store.Current()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, multipartUpload(t, "plant.csv", uploadCSV))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[uploadResponse](t, rec)
	assert.Equal(t, 3, resp.Rows)
	assert.Equal(t, "upload:plant.csv", resp.Source)
	assert.Contains(t, resp.Columns, "Deviation")

	after, err := store.Current()
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, after.ID)
	assert.Equal(t, resp.SnapshotID, after.ID.String())

	overview := decode[profile.Overview](t, do(t, app, http.MethodGet, "/api/data/overview", ""))
	assert.Equal(t, 3, overview.RowCount)
}

func TestUpload_KeepsCopyOnDisk(t *testing.T) {
	app, _ := newTestApp(t, false)
	dir := t.TempDir()
	app.uploads = dataset.NewLocalFileStorage(dir)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, multipartUpload(t, "plant.csv", uploadCSV))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[uploadResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.Source, "file:"+dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUpload_Rejections(t *testing.T) {
	app, _ := newTestApp(t, false)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, multipartUpload(t, "plant.xls", uploadCSV))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, multipartUpload(t, "empty.csv", "machine_id\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/data/upload", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	app, _ := newTestApp(t, false)
	rec := do(t, app, http.MethodOptions, "/api/health", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
