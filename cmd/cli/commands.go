package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sentinel/adapters/excel"
	"sentinel/adapters/stats/anomaly"
	"sentinel/adapters/stats/correlation"
	"sentinel/adapters/stats/profile"
	"sentinel/adapters/stats/temporal"
	"sentinel/adapters/store"
	"sentinel/domain/table"
	"sentinel/internal/analysis/insight"
	"sentinel/internal/analysis/rootcause"
	"sentinel/internal/report"
)

func (c *cli) newOverviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Row count, column types, date range and null counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd, profile.NewProfiler().Overview(snap.Table()))
		},
	}
}

func (c *cli) newColumnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns",
		Short: "Per-column statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd, profile.NewProfiler().ColumnsInfo(snap.Table()))
		},
	}
}

func (c *cli) newSampleCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Leading rows of the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = c.cfg.Analysis.SampleLimit
			}
			return c.print(cmd, profile.NewProfiler().Sample(snap.Table(), limit))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "rows to show (default from config)")
	return cmd
}

func (c *cli) newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Headline defect totals and distributions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd, profile.NewProfiler().Dashboard(snap.Table()))
		},
	}
}

func (c *cli) newTimeSeriesCmd() *cobra.Command {
	var column, start, end, groupBy string
	cmd := &cobra.Command{
		Use:   "timeseries",
		Short: "Aggregate a column by hour, day or week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			rng, err := temporal.ParseRange(start, end)
			if err != nil {
				return err
			}
			series, err := temporal.Aggregate(snap.Table(), column, rng, temporal.ParseGranularity(groupBy))
			if err != nil {
				return err
			}
			return c.print(cmd, series)
		},
	}
	f := cmd.Flags()
	f.StringVar(&column, "column", table.ColDefectCount, "column to aggregate")
	f.StringVar(&start, "start", "", "inclusive start date")
	f.StringVar(&end, "end", "", "inclusive end date")
	f.StringVar(&groupBy, "group-by", string(temporal.Hour), "hour, day or week")
	return cmd
}

func (c *cli) newCorrelationsCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "correlations",
		Short: "Numeric column pairs with |r| above a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = c.cfg.Analysis.CorrelationThreshold
			}
			return c.print(cmd, correlation.NewEngine().Correlations(snap.Table(), threshold))
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "minimum |r|")
	return cmd
}

func (c *cli) newAnomaliesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Rows the isolation forest flags, most anomalous first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.snapshot(cmd.Context()); err != nil {
				return err
			}
			model, _, err := c.store.Model(cmd.Context())
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = c.cfg.Analysis.AnomalyLimit
			}
			return c.print(cmd, model.Score(limit))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "rows to list (default from config)")
	return cmd
}

func (c *cli) newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features <row>",
		Short: "Z-scores of one row against each numeric column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("row must be an integer: %w", err)
			}
			snap, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			breakdown, err := anomaly.FeatureBreakdown(snap.Table(), row)
			if err != nil {
				return err
			}
			return c.print(cmd, breakdown)
		},
	}
}

// filterFlags binds the row filters shared by the analysis commands
type filterFlags struct {
	filters   rootcause.Filters
	issueType string
}

func (ff *filterFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&ff.filters.StartDate, "start", "", "inclusive start date")
	f.StringVar(&ff.filters.EndDate, "end", "", "inclusive end date")
	f.StringVar(&ff.filters.ProductionLine, "line", "", "production line")
	f.StringVar(&ff.filters.Severity, "severity", "", "severity")
	f.StringVar(&ff.issueType, "issue-type", "", "NCR type, ignored when the data has no ncr_type column")
}

func (ff *filterFlags) resolve(t *table.Table) rootcause.Filters {
	return ff.filters.WithIssueType(t, ff.issueType)
}

func (c *cli) newRootCauseCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "rootcause",
		Short: "Rank candidate root causes for the selected rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			t := snap.Table()
			res, err := rootcause.NewAnalyzer(c.logger.Zap()).Analyze(cmd.Context(), t, ff.resolve(t))
			if err != nil {
				return err
			}
			return c.print(cmd, res)
		},
	}
	ff.bind(cmd)
	return cmd
}

func (c *cli) newInsightsCmd() *cobra.Command {
	var ff filterFlags
	var target, factor string
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Trend, anomaly and correlation headlines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			t := snap.Table()
			if target == "" {
				target = c.cfg.Analysis.TargetColumn
			}
			if factor == "" {
				factor = c.cfg.Analysis.FactorColumn
			}
			res, err := insight.NewEngine(c.logger.Zap()).Generate(cmd.Context(), t, insight.Options{
				Filters: ff.resolve(t),
				Target:  target,
				Factor:  factor,
			})
			if err != nil {
				return err
			}
			return c.print(cmd, res)
		},
	}
	ff.bind(cmd)
	cmd.Flags().StringVar(&target, "target", "", "outcome column (default from config)")
	cmd.Flags().StringVar(&factor, "factor", "", "factor correlated with the target (default from config)")
	return cmd
}

// newActionsCmd runs the root-cause analysis and prints the corrective plan
// for every finding
func (c *cli) newActionsCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Corrective actions for each root cause found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			t := snap.Table()
			res, err := rootcause.NewAnalyzer(c.logger.Zap()).Analyze(cmd.Context(), t, ff.resolve(t))
			if err != nil {
				return err
			}
			engine := insight.NewEngine(c.logger.Zap())
			plans := make([]insight.ActionPlan, 0, len(res.RootCauses))
			for _, finding := range res.RootCauses {
				plans = append(plans, engine.SuggestActions(finding))
			}
			return c.print(cmd, plans)
		},
	}
	ff.bind(cmd)
	return cmd
}

func (c *cli) newReportCmd() *cobra.Command {
	var ff filterFlags
	var db archiveFlags
	var format, out string
	var save bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Full quality report as markdown, html or structured data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			snap, err := c.snapshot(ctx)
			if err != nil {
				return err
			}
			t := snap.Table()
			logger := c.logger.Zap()
			analyzer := rootcause.NewAnalyzer(logger)
			engine := insight.NewEngine(logger)
			rep, err := report.NewBuilder(c.store, analyzer, engine, logger).Build(ctx, snap, report.Options{
				Filters:              ff.resolve(t),
				CorrelationThreshold: c.cfg.Analysis.CorrelationThreshold,
				AnomalyLimit:         c.cfg.Analysis.AnomalyLimit,
				Target:               c.cfg.Analysis.TargetColumn,
				Factor:               c.cfg.Analysis.FactorColumn,
			})
			if err != nil {
				return err
			}

			if save {
				archive, err := c.openArchive(ctx, db)
				if err != nil {
					return err
				}
				defer archive.Close()
				if err := archive.SaveReport(ctx, rep); err != nil {
					return err
				}
			}
			return c.writeReport(cmd, rep, format, out)
		},
	}
	ff.bind(cmd)
	db.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown, html or data (json/yaml per --output)")
	cmd.Flags().StringVar(&out, "out", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&save, "save", false, "also archive the report in the database")
	return cmd
}

// archiveFlags pick the database holding archived reports
type archiveFlags struct {
	driver, url string
}

func (af *archiveFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&af.driver, "driver", "", "postgres or sqlite (default from config)")
	cmd.Flags().StringVar(&af.url, "url", "", "connection string or sqlite path (default from config)")
}

func (c *cli) openArchive(ctx context.Context, af archiveFlags) (*store.ReportRepository, error) {
	return store.OpenReports(ctx,
		firstSet(af.driver, c.cfg.Database.Driver),
		firstSet(af.url, c.cfg.Database.URL),
		c.logger.Zap())
}

func (c *cli) writeReport(cmd *cobra.Command, rep *report.Report, format, out string) error {
	w := cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	var err error
	switch format {
	case "markdown":
		_, err = fmt.Fprint(w, report.Markdown(rep))
	case "html":
		_, err = w.Write(report.HTML(rep))
	case "data":
		err = encode(w, c.output, rep)
	default:
		return fmt.Errorf("unsupported report format %q, expected markdown, html or data", format)
	}
	return err
}

// newReportsCmd browses the report archive
func (c *cli) newReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List and show archived reports",
	}

	var listDB archiveFlags
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Newest archived reports first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := c.openArchive(cmd.Context(), listDB)
			if err != nil {
				return err
			}
			defer archive.Close()
			summaries, err := archive.ListReports(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return c.print(cmd, summaries)
		},
	}
	listDB.bind(list)
	list.Flags().IntVar(&limit, "limit", 20, "maximum reports to list")

	var showDB archiveFlags
	var format, out string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Render one archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := c.openArchive(cmd.Context(), showDB)
			if err != nil {
				return err
			}
			defer archive.Close()
			rep, err := archive.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.writeReport(cmd, rep, format, out)
		},
	}
	showDB.bind(show)
	show.Flags().StringVar(&format, "format", "markdown", "markdown, html or data (json/yaml per --output)")
	show.Flags().StringVar(&out, "out", "", "write to this file instead of stdout")

	cmd.AddCommand(list, show)
	return cmd
}

// newImportCmd copies the configured source into a database table
func (c *cli) newImportCmd() *cobra.Command {
	var driver, url, tableName string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Append the current dataset to a database table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			snap, err := c.snapshot(ctx)
			if err != nil {
				return err
			}
			driver = firstSet(driver, c.cfg.Database.Driver)
			url = firstSet(url, c.cfg.Database.URL)
			tableName = firstSet(tableName, c.cfg.Database.Table)

			repo, err := store.Open(ctx, driver, url, c.logger.Zap())
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.SaveTable(ctx, tableName, snap.Table()); err != nil {
				return err
			}
			c.logger.Zap().Info("dataset imported",
				zap.String("source", snap.Source),
				zap.String("table", tableName),
				zap.Int("rows", snap.Table().Len()))
			return c.print(cmd, map[string]any{
				"source": snap.Source,
				"driver": driver,
				"table":  tableName,
				"rows":   snap.Table().Len(),
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&driver, "driver", "", "postgres or sqlite (default from config)")
	f.StringVar(&url, "url", "", "connection string or sqlite path (default from config)")
	f.StringVar(&tableName, "table", "", "destination table (default from config)")
	return cmd
}

func (c *cli) newExportCmd() *cobra.Command {
	var out, sheet string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current dataset to an xlsx or csv file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if err := excel.WriteFile(out, snap.Table(), sheet); err != nil {
				return err
			}
			return c.print(cmd, map[string]any{"file": out, "rows": snap.Table().Len()})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "destination .xlsx or .csv file")
	cmd.Flags().StringVar(&sheet, "export-sheet", "", "worksheet name for xlsx output")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
