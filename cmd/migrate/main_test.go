package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/adapters/store"
	"sentinel/internal/report"
)

func writeReport(t *testing.T, path string, rep report.Report) {
	t.Helper()
	data, err := json.Marshal(rep)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeReport(t, filepath.Join(dir, "a.json"), report.Report{ID: "r-a", Source: "sample", GeneratedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)})
	writeReport(t, filepath.Join(dir, "nested", "b.json"), report.Report{Source: "file:plant.xlsx"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	archive, err := store.OpenReports(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "archive.db"), nil)
	require.NoError(t, err)
	defer archive.Close()

	migrated, skipped, err := backfill(ctx, archive, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)
	assert.Equal(t, 1, skipped)

	list, err := archive.ListReports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// a second run finds everything archived already
	migrated, skipped, err = backfill(ctx, archive, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, migrated)
	assert.Equal(t, 3, skipped)
}
