package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/errors"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "5000", c.Server.Port)
	assert.Equal(t, SourceSample, c.Data.Source)
	assert.Equal(t, 0.1, c.Analysis.Contamination)
	assert.Equal(t, int64(42), c.Analysis.Seed)
	assert.Equal(t, "defect_count", c.Analysis.TargetColumn)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
data:
  source: file
  file: ./defects.xlsx
analysis:
  correlation_threshold: 0.3
`), 0o644))

	t.Setenv("SENTINEL_ANALYSIS_ANOMALY_LIMIT", "7")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", c.Server.Port)
	assert.Equal(t, SourceFile, c.Data.Source)
	assert.Equal(t, "./defects.xlsx", c.Data.File)
	assert.Equal(t, 0.3, c.Analysis.CorrelationThreshold)
	assert.Equal(t, 7, c.Analysis.AnomalyLimit)
	assert.Equal(t, 100, c.Analysis.Trees)
}

func TestLoad_APISource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data:
  source: api
  api:
    url: http://mes.local/api/ncr
    data_path: data.items
    pagination: cursor
    timeout: 5s
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourceAPI, c.Data.Source)
	assert.Equal(t, "data.items", c.Data.API.DataPath)
	assert.Equal(t, 5*time.Second, c.Data.API.Timeout)
	assert.Equal(t, 500, c.Data.API.PageSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"file source without file", func(c *Config) { c.Data.Source = SourceFile }},
		{"unknown source", func(c *Config) { c.Data.Source = "s3" }},
		{"bad driver", func(c *Config) { c.Data.Source = SourceDatabase; c.Database.Driver = "mysql" }},
		{"api without url", func(c *Config) { c.Data.Source = SourceAPI }},
		{"api pagination", func(c *Config) {
			c.Data.Source = SourceAPI
			c.Data.API.URL = "http://mes.local/ncr"
			c.Data.API.Pagination = "link"
		}},
		{"archive without url", func(c *Config) { c.Database.ArchiveReports = true; c.Database.URL = "" }},
		{"contamination", func(c *Config) { c.Analysis.Contamination = 0.7 }},
		{"threshold", func(c *Config) { c.Analysis.CorrelationThreshold = 1.5 }},
		{"trees", func(c *Config) { c.Analysis.Trees = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}
