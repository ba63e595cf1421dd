package dataset

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sentinel/adapters/api"
	"sentinel/adapters/excel"
	"sentinel/adapters/stats/anomaly"
	"sentinel/adapters/store"
	"sentinel/domain/table"
	"sentinel/internal/config"
	"sentinel/internal/testkit"
	"sentinel/ports"
)

// NewDetectorFactory builds isolation forests from the analysis settings
func NewDetectorFactory(cfg config.AnalysisConfig) DetectorFactory {
	forest := anomaly.ForestConfig{
		Trees:         cfg.Trees,
		SubsampleSize: cfg.SubsampleSize,
		Contamination: cfg.Contamination,
		Seed:          uint64(cfg.Seed),
	}
	return func() ports.OutlierDetector { return anomaly.NewIsolationForest(forest) }
}

// Load reads the initial table from the configured source and returns it
// with a description of where it came from
func Load(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*table.Table, string, error) {
	switch cfg.Data.Source {
	case config.SourceFile:
		reader, err := excel.NewDataReader(cfg.Data.File,
			excel.WithSheet(cfg.Data.Sheet),
			excel.WithLogger(logger))
		if err != nil {
			return nil, "", err
		}
		t, err := reader.ReadTable()
		if err != nil {
			return nil, "", fmt.Errorf("load %s: %w", cfg.Data.File, err)
		}
		return t, "file:" + cfg.Data.File, nil

	case config.SourceDatabase:
		repo, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URL, logger)
		if err != nil {
			return nil, "", err
		}
		defer repo.Close()
		t, err := repo.LoadTable(ctx, cfg.Database.Table)
		if err != nil {
			return nil, "", err
		}
		return t, fmt.Sprintf("%s:%s", cfg.Database.Driver, cfg.Database.Table), nil

	case config.SourceAPI:
		src := cfg.Data.API
		t, err := api.NewReader(api.Source{
			URL:        src.URL,
			DataPath:   src.DataPath,
			Token:      src.Token,
			Pagination: src.Pagination,
			PageSize:   src.PageSize,
			MaxPages:   src.MaxPages,
			Timeout:    src.Timeout,
		}, logger).ReadTable(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("load %s: %w", src.URL, err)
		}
		return t, "api:" + src.URL, nil

	default:
		gen := testkit.DefaultManufacturingConfig()
		gen.Rows = cfg.Data.Rows
		gen.Seed = uint64(cfg.Analysis.Seed)
		t, err := testkit.GenerateManufacturing(gen)
		if err != nil {
			return nil, "", err
		}
		return t, config.SourceSample, nil
	}
}
