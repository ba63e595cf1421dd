package excel

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/domain/table"
)

func exportFixture(t *testing.T) *table.Table {
	t.Helper()
	start := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	tbl, err := table.New(
		table.NewTemporalColumn("timestamp", []time.Time{start, start.Add(time.Hour), start.Add(2 * time.Hour)}),
		table.NewCategoricalColumn("machine_id", []string{"M001", "M002", "M001"}, nil),
		table.NewNumericColumn("temperature", []float64{71.25, math.NaN(), 83.5}),
		table.NewNumericColumn("defect_count", []float64{0, 1, 4}),
	)
	require.NoError(t, err)
	return tbl
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	src := exportFixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, src))
	assert.Contains(t, buf.String(), "2024-05-01 07:00:00,M002,,1\n")

	r, err := NewStreamReader(&buf, "export.csv")
	require.NoError(t, err)
	got, err := r.ReadTable()
	require.NoError(t, err)
	assert.Equal(t, src.Fingerprint(), got.Fingerprint())
}

func TestWriteFile_XLSXRoundTrip(t *testing.T) {
	src := exportFixture(t)
	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, WriteFile(path, src, "Quality"))

	r, err := NewDataReader(path, WithSheet("Quality"))
	require.NoError(t, err)
	got, err := r.ReadTable()
	require.NoError(t, err)

	assert.Equal(t, src.Names(), got.Names())
	assert.Equal(t, src.Len(), got.Len())
	temp, ok := got.Column("temperature")
	require.True(t, ok)
	assert.Equal(t, table.TypeNumeric, temp.Type())
	assert.True(t, temp.IsNull(1))
	assert.Equal(t, []float64{71.25, 83.5}, temp.NonNullFloats())

	ts, ok := got.TimeColumn()
	require.True(t, ok)
	last, _ := ts.Time(2)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), last)
}

func TestWriteFile_RejectsUnknownExtension(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "export.json"), exportFixture(t), "")
	assert.Error(t, err)
}
