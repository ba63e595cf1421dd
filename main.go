package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sentinel/adapters/store"
	"sentinel/domain/table"
	"sentinel/internal"
	"sentinel/internal/config"
	"sentinel/internal/dataset"
	"sentinel/ui"
)

// loadInitial builds the first snapshot. A file or database that cannot be
// read falls back to generated sample data so the API still comes up.
func loadInitial(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*table.Table, string, error) {
	t, source, err := dataset.Load(ctx, cfg, logger)
	if err == nil || cfg.Data.Source == config.SourceSample {
		return t, source, err
	}
	logger.Warn("configured data source unavailable, using sample data",
		zap.String("source", cfg.Data.Source), zap.Error(err))
	fallback := *cfg
	fallback.Data.Source = config.SourceSample
	return dataset.Load(ctx, &fallback, logger)
}

func main() {
	cfgFile := flag.String("config", "", "config file (default ./sentinel.yaml)")
	flag.Parse()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level), cfg.Log.Format)
	defer logger.Sync()
	zl := logger.Zap()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, source, err := loadInitial(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to load data", zap.Error(err))
	}

	snapshots := dataset.NewStore(dataset.NewDetectorFactory(cfg.Analysis), zl)
	snap := snapshots.Replace(t, source)
	zl.Info("data loaded",
		zap.String("source", source),
		zap.String("snapshot", snap.ID.String()),
		zap.Int("rows", t.Len()),
		zap.Strings("columns", t.Names()))

	var opts []ui.Option
	if cfg.Database.ArchiveReports {
		archive, err := store.OpenReports(ctx, cfg.Database.Driver, cfg.Database.URL, zl)
		if err != nil {
			zl.Fatal("failed to open report archive", zap.Error(err))
		}
		defer archive.Close()
		opts = append(opts, ui.WithArchive(archive))
	}

	app := ui.NewApp(cfg, snapshots, zl, opts...)
	if err := app.Start(ctx); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}
