package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sentinel/domain/table"
	"sentinel/internal"
	"sentinel/internal/config"
	"sentinel/internal/dataset"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the settings every command shares
type cli struct {
	cfgFile  string
	output   string
	dataFile string
	sheet    string
	rows     int

	cfg    *config.Config
	logger *internal.Logger
	store  *dataset.Store
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "sentinel-cli",
		Short:         "Manufacturing quality analysis from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				c.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default ./sentinel.yaml)")
	flags.StringVarP(&c.output, "output", "o", "json", "output format: json or yaml")
	flags.StringVar(&c.dataFile, "file", "", "analyze this Excel or CSV file instead of the configured source")
	flags.StringVar(&c.sheet, "sheet", "", "worksheet to read from --file")
	flags.IntVar(&c.rows, "rows", 0, "rows of generated sample data when no file or database is configured")

	root.AddCommand(
		c.newOverviewCmd(),
		c.newColumnsCmd(),
		c.newSampleCmd(),
		c.newDashboardCmd(),
		c.newTimeSeriesCmd(),
		c.newCorrelationsCmd(),
		c.newAnomaliesCmd(),
		c.newFeaturesCmd(),
		c.newRootCauseCmd(),
		c.newInsightsCmd(),
		c.newActionsCmd(),
		c.newReportCmd(),
		c.newReportsCmd(),
		c.newImportCmd(),
		c.newExportCmd(),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	if c.output != "json" && c.output != "yaml" {
		return fmt.Errorf("unsupported output %q, expected json or yaml", c.output)
	}
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if c.dataFile != "" {
		cfg.Data.Source = config.SourceFile
		cfg.Data.File = c.dataFile
		cfg.Data.Sheet = c.sheet
	}
	if c.rows > 0 {
		cfg.Data.Rows = c.rows
	}
	c.cfg = cfg
	c.logger = internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level), cfg.Log.Format)
	c.store = dataset.NewStore(dataset.NewDetectorFactory(cfg.Analysis), c.logger.Zap())
	return nil
}

// snapshot loads the configured source on first use
func (c *cli) snapshot(ctx context.Context) (*table.Snapshot, error) {
	if snap, err := c.store.Current(); err == nil {
		return snap, nil
	}
	t, source, err := dataset.Load(ctx, c.cfg, c.logger.Zap())
	if err != nil {
		return nil, err
	}
	return c.store.Replace(t, source), nil
}
