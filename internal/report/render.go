package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sentinel/domain/core"
	"sentinel/internal/analysis/rootcause"
)

const (
	reportTitle     = "Manufacturing Quality Report"
	maxCorrelations = 10
	maxAnomalies    = 10
)

// Markdown renders the report as a Markdown document
func Markdown(r *Report) string {
	title := cases.Title(language.English)
	var b bytes.Buffer

	fmt.Fprintf(&b, "# %s\n\n", reportTitle)
	fmt.Fprintf(&b, "Report `%s` for snapshot `%s` (%s), generated %s.\n\n",
		r.ID, r.SnapshotID, r.Source, r.GeneratedAt.Format(core.SampleLayout))

	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "- Records: %d\n", r.Overview.RowCount)
	fmt.Fprintf(&b, "- Columns: %d (%d numeric, %d categorical)\n",
		r.Overview.ColumnCount, len(r.Overview.NumericColumns), len(r.Overview.CategoricalColumns))
	if dr := r.Overview.DateRange; dr != nil {
		fmt.Fprintf(&b, "- Period: %s to %s\n", dr.Start, dr.End)
	}
	b.WriteString("\n")

	b.WriteString("## Root Causes\n\n")
	if r.RootCause == nil || len(r.RootCause.RootCauses) == 0 {
		b.WriteString("No root cause stood out in the selected records.\n\n")
	} else {
		for _, f := range r.RootCause.RootCauses {
			fmt.Fprintf(&b, "### %s (confidence %.0f%%)\n\n",
				f.Description, f.Confidence*100)
			for _, ev := range f.Findings {
				fmt.Fprintf(&b, "- %s\n", evidenceLine(ev))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Insights\n\n")
	if r.Insights == nil || len(r.Insights.Insights) == 0 {
		b.WriteString("No insights.\n\n")
	} else {
		for _, in := range r.Insights.Insights {
			fmt.Fprintf(&b, "- **%s** (%s, %s): %s\n",
				in.Title, title.String(string(in.Severity)), in.Type, in.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Correlations\n\n")
	if len(r.Correlations.Correlations) == 0 {
		msg := r.Correlations.Message
		if msg == "" {
			msg = fmt.Sprintf("No pair reaches |r| >= %.2f.", r.Correlations.Threshold)
		}
		b.WriteString(msg + "\n\n")
	} else {
		b.WriteString("| Variable 1 | Variable 2 | r | Strength |\n")
		b.WriteString("|---|---|---|---|\n")
		for i, p := range r.Correlations.Correlations {
			if i == maxCorrelations {
				break
			}
			fmt.Fprintf(&b, "| %s | %s | %.3f | %s |\n", p.Variable1, p.Variable2, p.Correlation, p.Strength)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Anomalies\n\n")
	if !r.Anomalies.Trained {
		b.WriteString(r.Anomalies.Message + "\n\n")
	} else {
		fmt.Fprintf(&b, "%d anomalous records (%.1f%% of the data).\n\n",
			r.Anomalies.TotalAnomalies, r.Anomalies.AnomalyRate)
		if len(r.Anomalies.Anomalies) > 0 {
			b.WriteString("| Row | Score |\n|---|---|\n")
			for i, a := range r.Anomalies.Anomalies {
				if i == maxAnomalies {
					break
				}
				fmt.Fprintf(&b, "| %d | %.4f |\n", a.Index, a.AnomalyScore)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Recommended Actions\n\n")
	if len(r.Actions) == 0 {
		b.WriteString("No actions suggested.\n")
	}
	for _, plan := range r.Actions {
		for _, a := range plan.Actions {
			fmt.Fprintf(&b, "### %s (%s priority)\n\n%s\n\n", a.Action, a.Priority, a.Description)
			for i, step := range a.Steps {
				fmt.Fprintf(&b, "%d. %s\n", i+1, step)
			}
			fmt.Fprintf(&b, "\n_%s_\n\n", a.EstimatedImpact)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// evidenceLine names the flagged machine or operator, if any, ahead of the
// pattern. Frequency evidence carries no pattern and is rendered from its
// counts.
func evidenceLine(ev rootcause.Evidence) string {
	line := ev.Pattern
	if line == "" && ev.IssueCount != nil && ev.AvgIssueCount != nil && ev.Ratio != nil {
		line = fmt.Sprintf("%d issues, %.2fx the average of %.2f", *ev.IssueCount, *ev.Ratio, *ev.AvgIssueCount)
	}
	if ev.AvgDefects != nil {
		line += fmt.Sprintf(" (average defects %.2f)", *ev.AvgDefects)
	}
	subject := ev.Equipment
	if subject == "" {
		subject = ev.Operator
	}
	if subject != "" {
		line = subject + ": " + line
	}
	if ev.Evidence != "" {
		line += ": " + ev.Evidence
	}
	return line
}

// HTML renders the report as a standalone HTML page. Parsers keep state, so
// each call builds its own.
func HTML(r *Report) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: reportTitle,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML([]byte(Markdown(r)), p, renderer)
}
