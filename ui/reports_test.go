package ui

import (
	"context"
	stderrors "errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"sentinel/adapters/store"
	apperrors "sentinel/internal/errors"
	"sentinel/internal/report"
)

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) SaveReport(ctx context.Context, r *report.Report) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockArchive) GetReport(ctx context.Context, id string) (*report.Report, error) {
	args := m.Called(ctx, id)
	rep, _ := args.Get(0).(*report.Report)
	return rep, args.Error(1)
}

func (m *mockArchive) ListReports(ctx context.Context, limit int) ([]report.Summary, error) {
	args := m.Called(ctx, limit)
	list, _ := args.Get(0).([]report.Summary)
	return list, args.Error(1)
}

func (m *mockArchive) Close() error { return m.Called().Error(0) }

func withSQLiteArchive(t *testing.T, app *App) {
	t.Helper()
	archive, err := store.OpenReports(t.Context(), store.DriverSQLite, filepath.Join(t.TempDir(), "reports.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })
	WithArchive(archive)(app)
}

func TestReportArchive_SaveListShow(t *testing.T) {
	app, _ := newTestApp(t, true)
	withSQLiteArchive(t, app)

	rec := do(t, app, http.MethodGet, "/api/report?save=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[report.Report](t, rec)
	require.NotEmpty(t, saved.ID)

	rec = do(t, app, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "count").Int())
	assert.Equal(t, saved.ID, gjson.Get(body, "reports.0.id").String())
	assert.Equal(t, saved.SnapshotID.String(), gjson.Get(body, "reports.0.snapshot_id").String())

	rec = do(t, app, http.MethodGet, "/api/reports/"+saved.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[report.Report](t, rec)
	assert.Equal(t, saved.ID, got.ID)

	rec = do(t, app, http.MethodGet, "/api/reports/"+saved.ID+"?format=markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")

	rec = do(t, app, http.MethodGet, "/api/reports/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportArchive_Disabled(t *testing.T) {
	app, _ := newTestApp(t, true)

	assert.Equal(t, http.StatusBadRequest, do(t, app, http.MethodGet, "/api/report?save=true", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodGet, "/api/reports", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodGet, "/api/reports/any", "").Code)
}

func TestReportArchive_Failures(t *testing.T) {
	app, _ := newTestApp(t, true)
	archive := new(mockArchive)
	WithArchive(archive)(app)

	archive.On("SaveReport", mock.Anything, mock.AnythingOfType("*report.Report")).
		Return(apperrors.DatabaseError("failed to archive report", stderrors.New("disk full"))).Once()
	archive.On("ListReports", mock.Anything, 5).Return(nil, apperrors.DatabaseError("failed to list reports", stderrors.New("locked"))).Once()
	archive.On("GetReport", mock.Anything, "gone").Return(nil, apperrors.NotFound("report gone")).Once()

	rec := do(t, app, http.MethodGet, "/api/report?save=true", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperrors.CodeDatabaseError, gjson.Get(rec.Body.String(), "code").String())

	rec = do(t, app, http.MethodGet, "/api/reports?limit=5", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(t, app, http.MethodGet, "/api/reports/gone", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	archive.AssertExpectations(t)
}
