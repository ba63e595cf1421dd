package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"sentinel/adapters/stats/profile"
	"sentinel/adapters/store"
	"sentinel/internal/analysis/insight"
	"sentinel/internal/analysis/rootcause"
	"sentinel/internal/config"
	"sentinel/internal/report"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SENTINEL_LOG_LEVEL", "error")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOverview_GeneratedSample(t *testing.T) {
	out, err := run(t, "overview", "--rows", "150")
	require.NoError(t, err)

	var overview profile.Overview
	require.NoError(t, json.Unmarshal([]byte(out), &overview))
	assert.Equal(t, 150, overview.RowCount)
	assert.Equal(t, 13, overview.ColumnCount)
}

func TestOverview_YAMLOutput(t *testing.T) {
	out, err := run(t, "overview", "--rows", "50", "-o", "yaml")
	require.NoError(t, err)

	var overview profile.Overview
	require.NoError(t, yaml.Unmarshal([]byte(out), &overview))
	assert.Equal(t, 50, overview.RowCount)
}

func TestUnsupportedOutput(t *testing.T) {
	_, err := run(t, "overview", "-o", "xml")
	assert.ErrorContains(t, err, "unsupported output")
}

func TestRootCauseAndActions(t *testing.T) {
	out, err := run(t, "rootcause", "--rows", "400", "--line", "Line B")
	require.NoError(t, err)
	var res rootcause.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Positive(t, res.TotalIssues)
	assert.Less(t, res.TotalIssues, 400)

	out, err = run(t, "actions", "--rows", "400")
	require.NoError(t, err)
	var plans []insight.ActionPlan
	require.NoError(t, json.Unmarshal([]byte(out), &plans))
	for _, p := range plans {
		assert.NotEmpty(t, p.Actions)
	}

	_, err = run(t, "rootcause", "--rows", "50", "--start", "someday")
	assert.Error(t, err)
}

func TestFeatures_RejectsBadRow(t *testing.T) {
	_, err := run(t, "features", "x", "--rows", "20")
	assert.Error(t, err)

	_, err = run(t, "features", "500", "--rows", "20")
	assert.Error(t, err)
}

func TestReport_MarkdownToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	_, err := run(t, "report", "--rows", "200", "--out", path)
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "# Manufacturing Quality Report"))

	_, err = run(t, "report", "--rows", "20", "--format", "pdf")
	assert.Error(t, err)
}

func TestExportThenAnalyzeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.csv")
	_, err := run(t, "export", "--rows", "80", "--out", path)
	require.NoError(t, err)

	out, err := run(t, "overview", "--file", path)
	require.NoError(t, err)
	var overview profile.Overview
	require.NoError(t, json.Unmarshal([]byte(out), &overview))
	assert.Equal(t, 80, overview.RowCount)
}

func TestImport_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "quality.db")
	_, err := run(t, "import", "--rows", "60", "--driver", "sqlite", "--url", dbPath, "--table", "ncr")
	require.NoError(t, err)

	repo, err := store.Open(context.Background(), store.DriverSQLite, dbPath, nil)
	require.NoError(t, err)
	defer repo.Close()
	tbl, err := repo.LoadTable(context.Background(), "ncr")
	require.NoError(t, err)
	assert.Equal(t, 60, tbl.Len())
}

func TestReport_SaveListShow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "archive.db")
	_, err := run(t, "report", "--rows", "120", "--format", "data", "--save", "--driver", "sqlite", "--url", dbPath,
		"--out", filepath.Join(t.TempDir(), "report.json"))
	require.NoError(t, err)

	out, err := run(t, "reports", "list", "--driver", "sqlite", "--url", dbPath)
	require.NoError(t, err)
	var summaries []report.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, config.SourceSample, summaries[0].Source)

	out, err = run(t, "reports", "show", summaries[0].ID, "--driver", "sqlite", "--url", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "# ")

	_, err = run(t, "reports", "show", "missing", "--driver", "sqlite", "--url", dbPath)
	assert.Error(t, err)
}
