package ui

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sentinel/adapters/stats/anomaly"
	"sentinel/internal/analysis/insight"
	"sentinel/internal/analysis/rootcause"
	apperrors "sentinel/internal/errors"
	"sentinel/internal/report"
)

const defaultCorrelationThreshold = 0.5

func (a *App) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	snap, err := a.store.Current()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	threshold, err := floatQuery(r, "threshold", a.correlationThreshold())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.correlations.Correlations(snap.Table(), threshold))
}

// handleAnomalies scores the current snapshot, fitting its model on first use
func (a *App) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", a.config.Analysis.AnomalyLimit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	model, _, err := a.store.Model(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, model.Score(limit))
}

func (a *App) handleAnomalyFeatures(w http.ResponseWriter, r *http.Request) {
	snap, err := a.store.Current()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		a.writeError(w, r, apperrors.InvalidInput("index must be an integer"))
		return
	}
	breakdown, err := anomaly.FeatureBreakdown(snap.Table(), index)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, breakdown)
}

type rootCauseRequest struct {
	IssueType string            `json:"issue_type"`
	Filters   rootcause.Filters `json:"filters"`
}

func (a *App) handleRootCause(w http.ResponseWriter, r *http.Request) {
	var req rootCauseRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	snap, err := a.store.Current()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	t := snap.Table()
	res, err := a.analyzer.Analyze(r.Context(), t, req.Filters.WithIssueType(t, req.IssueType))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

type insightsRequest struct {
	Filters rootcause.Filters `json:"filters"`
	Target  string            `json:"target"`
	Factor  string            `json:"factor"`
}

func (a *App) handleInsights(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	snap, err := a.store.Current()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.insights.Generate(r.Context(), snap.Table(), insight.Options{
		Filters: req.Filters,
		Target:  firstNonEmpty(req.Target, a.config.Analysis.TargetColumn),
		Factor:  firstNonEmpty(req.Factor, a.config.Analysis.FactorColumn),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

type suggestRequest struct {
	RootCause *rootcause.Finding `json:"root_cause"`
	IssueType string             `json:"issue_type"` // accepted for compatibility, unused
}

func (a *App) handleSuggestActions(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.RootCause == nil {
		a.writeError(w, r, apperrors.InvalidInput("root_cause is required"))
		return
	}
	a.writeJSON(w, http.StatusOK, a.insights.SuggestActions(*req.RootCause))
}

// handleReport builds a full report of the current snapshot. Query
// parameters mirror the root-cause filters.
func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	snap, err := a.store.Current()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	threshold, err := floatQuery(r, "threshold", a.correlationThreshold())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", a.config.Analysis.AnomalyLimit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	rep, err := a.reports.Build(r.Context(), snap, report.Options{
		Filters: rootcause.Filters{
			StartDate:      q.Get("start_date"),
			EndDate:        q.Get("end_date"),
			ProductionLine: q.Get("production_line"),
			Severity:       q.Get("severity"),
			IssueType:      q.Get("issue_type"),
		},
		CorrelationThreshold: threshold,
		AnomalyLimit:         limit,
		Target:               a.config.Analysis.TargetColumn,
		Factor:               a.config.Analysis.FactorColumn,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if q.Get("save") == "true" {
		if a.archive == nil {
			a.writeError(w, r, apperrors.InvalidInput("report archiving is not enabled"))
			return
		}
		if err := a.archive.SaveReport(r.Context(), rep); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	a.writeReport(w, r, rep, q.Get("format"))
}

func (a *App) handleListReports(w http.ResponseWriter, r *http.Request) {
	if a.archive == nil {
		a.writeError(w, r, apperrors.NotFound("report archive"))
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	list, err := a.archive.ListReports(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"reports": list, "count": len(list)})
}

func (a *App) handleArchivedReport(w http.ResponseWriter, r *http.Request) {
	if a.archive == nil {
		a.writeError(w, r, apperrors.NotFound("report archive"))
		return
	}
	rep, err := a.archive.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeReport(w, r, rep, r.URL.Query().Get("format"))
}

// writeReport renders rep as json (the default), markdown or html
func (a *App) writeReport(w http.ResponseWriter, r *http.Request, rep *report.Report, format string) {
	switch format {
	case "", "json":
		a.writeJSON(w, http.StatusOK, rep)
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Markdown(rep)))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(report.HTML(rep))
	default:
		a.writeError(w, r, apperrors.InvalidInput("unknown report format "+strconv.Quote(format)))
	}
}

func (a *App) correlationThreshold() float64 {
	if t := a.config.Analysis.CorrelationThreshold; t > 0 {
		return t
	}
	return defaultCorrelationThreshold
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
