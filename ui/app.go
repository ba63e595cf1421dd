package ui

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"sentinel/adapters/stats/correlation"
	"sentinel/adapters/stats/profile"
	"sentinel/internal"
	"sentinel/internal/analysis/insight"
	"sentinel/internal/analysis/rootcause"
	"sentinel/internal/config"
	"sentinel/internal/dataset"
	"sentinel/internal/report"
)

const shutdownTimeout = 10 * time.Second

// App serves the quality analysis API
type App struct {
	router       *chi.Mux
	config       *config.Config
	store        *dataset.Store
	uploads      *dataset.LocalFileStorage // nil keeps uploads in memory
	profiler     *profile.Profiler
	correlations *correlation.Engine
	analyzer     *rootcause.Analyzer
	insights     *insight.Engine
	reports      *report.Builder
	archive      report.Archive // nil disables report history
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures an App
type Option func(*App)

// WithArchive keeps generated reports in archive
func WithArchive(archive report.Archive) Option {
	return func(a *App) { a.archive = archive }
}

// NewApp wires the analysis engines around store
func NewApp(cfg *config.Config, store *dataset.Store, logger *zap.Logger, opts ...Option) *App {
	logger = internal.OrNop(logger)
	analyzer := rootcause.NewAnalyzer(logger)
	insights := insight.NewEngine(logger)

	app := &App{
		router:       chi.NewRouter(),
		config:       cfg,
		store:        store,
		profiler:     profile.NewProfiler(),
		correlations: correlation.NewEngine(),
		analyzer:     analyzer,
		insights:     insights,
		reports:      report.NewBuilder(store, analyzer, insights, logger),
		logger:       logger.Named("http"),
		now:          time.Now,
	}
	if cfg.Data.UploadDir != "" {
		app.uploads = dataset.NewLocalFileStorage(cfg.Data.UploadDir)
	}
	for _, opt := range opts {
		opt(app)
	}

	app.setupMiddleware()
	app.setupRoutes()
	return app
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(requestLogger(a.logger))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
	a.router.Use(allowCORS)
}

// setupRoutes configures the API routes
func (a *App) setupRoutes() {
	a.router.Get("/api/health", a.handleHealth)

	a.router.Route("/api/data", func(r chi.Router) {
		r.Get("/overview", a.handleOverview)
		r.Get("/columns", a.handleColumns)
		r.Get("/sample", a.handleSample)
		r.Post("/upload", a.handleUpload)
	})
	a.router.Get("/api/dashboard/stats", a.handleDashboardStats)
	a.router.Get("/api/time-series", a.handleTimeSeries)

	a.router.Route("/api/analysis", func(r chi.Router) {
		r.Get("/correlations", a.handleCorrelations)
		r.Get("/anomalies", a.handleAnomalies)
		r.Get("/anomalies/{index}/features", a.handleAnomalyFeatures)
		r.Post("/root-cause", a.handleRootCause)
	})
	a.router.Post("/api/insights/generate", a.handleInsights)
	a.router.Post("/api/actions/suggest", a.handleSuggestActions)
	a.router.Get("/api/report", a.handleReport)
	a.router.Get("/api/reports", a.handleListReports)
	a.router.Get("/api/reports/{id}", a.handleArchivedReport)
}

// ServeHTTP lets the app act as an http.Handler
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (a *App) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.config.Server.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
