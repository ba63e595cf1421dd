package ui

import (
	"context"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"sentinel/adapters/excel"
	"sentinel/adapters/stats/temporal"
	"sentinel/domain/table"
	apperrors "sentinel/internal/errors"
)

const (
	defaultSampleLimit = 100
	uploadMemory       = 32 << 20
)

// handleHealth reports liveness
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": a.now().Format("2006-01-02T15:04:05.000000"),
	})
}

func (a *App) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap, err := a.store.Current()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.profiler.Overview(snap.Table()))
}

func (a *App) handleColumns(w http.ResponseWriter, r *http.Request) {
	snap, err := a.store.Current()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.profiler.ColumnsInfo(snap.Table()))
}

func (a *App) handleSample(w http.ResponseWriter, r *http.Request) {
	snap, err := a.store.Current()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	def := a.config.Analysis.SampleLimit
	if def <= 0 {
		def = defaultSampleLimit
	}
	limit, err := intQuery(r, "limit", def)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.profiler.Sample(snap.Table(), limit))
}

func (a *App) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	snap, err := a.store.Current()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.profiler.Dashboard(snap.Table()))
}

func (a *App) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	snap, err := a.store.Current()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	column := q.Get("column")
	if column == "" {
		column = table.ColDefectCount
	}
	rng, err := temporal.ParseRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	series, err := temporal.Aggregate(snap.Table(), column, rng, temporal.ParseGranularity(q.Get("group_by")))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, series)
}

// uploadResponse describes the snapshot an upload produced
type uploadResponse struct {
	SnapshotID string   `json:"snapshot_id"`
	Source     string   `json:"source"`
	Rows       int      `json:"rows"`
	Columns    []string `json:"columns"`
}

// handleUpload replaces the current snapshot with an uploaded workbook or CSV
func (a *App) handleUpload(w http.ResponseWriter, r *http.Request) {
	if limit := a.config.Server.MaxUploadBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		a.writeError(w, r, apperrors.InvalidInput("invalid upload: "+err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, r, apperrors.InvalidInput("missing file field"))
		return
	}
	defer file.Close()

	if _, err := excel.DetectFileType(header.Filename); err != nil {
		a.writeError(w, r, err)
		return
	}

	t, source, err := a.readUpload(r.Context(), file, header)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	snap := a.store.Replace(t, source)
	a.logger.Info("dataset uploaded",
		zap.String("file", header.Filename),
		zap.String("snapshot", snap.ID.String()),
		zap.Int("rows", t.Len()))
	a.writeJSON(w, http.StatusCreated, uploadResponse{
		SnapshotID: snap.ID.String(),
		Source:     snap.Source,
		Rows:       t.Len(),
		Columns:    t.Names(),
	})
}

// readUpload parses the upload, keeping a copy on disk when an upload
// directory is configured
func (a *App) readUpload(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*table.Table, string, error) {
	opts := []excel.ReaderOption{excel.WithLogger(a.logger)}

	if a.uploads == nil {
		reader, err := excel.NewStreamReader(file, header.Filename, opts...)
		if err != nil {
			return nil, "", err
		}
		t, err := reader.ReadTable()
		return t, "upload:" + header.Filename, err
	}

	path, err := a.uploads.Store(ctx, file, header.Filename)
	if err != nil {
		return nil, "", err
	}
	reader, err := excel.NewDataReader(path, opts...)
	if err != nil {
		return nil, "", err
	}
	t, err := reader.ReadTable()
	if err != nil {
		if derr := a.uploads.Delete(ctx, path); derr != nil {
			a.logger.Warn("failed to remove rejected upload", zap.String("path", path), zap.Error(derr))
		}
		return nil, "", err
	}
	return t, "file:" + path, nil
}
