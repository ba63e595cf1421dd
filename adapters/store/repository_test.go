package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/domain/core"
	"sentinel/domain/table"
	"sentinel/internal/testkit"
)

func openSQLite(t *testing.T) *tableRepository {
	t.Helper()
	repo, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "data.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo.(*tableRepository)
}

func TestSQLite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openSQLite(t)

	cfg := testkit.DefaultManufacturingConfig()
	cfg.Rows = 48
	want, err := testkit.GenerateManufacturing(cfg)
	require.NoError(t, err)

	require.NoError(t, repo.SaveTable(ctx, "manufacturing_data", want))
	got, err := repo.LoadTable(ctx, "manufacturing_data")
	require.NoError(t, err)

	assert.Equal(t, want.Names(), got.Names())
	assert.Equal(t, want.Len(), got.Len())
	for _, col := range want.Columns() {
		other, ok := got.Column(col.Name())
		require.True(t, ok, col.Name())
		assert.Equal(t, col.Type(), other.Type(), col.Name())
	}
	assert.Equal(t, want.Fingerprint(), got.Fingerprint())
}

func TestSQLite_NullsAndAppend(t *testing.T) {
	ctx := context.Background()
	repo := openSQLite(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl := table.MustNew(
		table.NewTemporalColumn("timestamp", []time.Time{base, {}, base.Add(2 * time.Hour)}),
		table.NewNumericColumn("Nominal", []float64{10, 10, 10}),
		table.NewNumericColumn("Measured Value", []float64{10.5, math.NaN(), 9}),
		table.NewCategoricalColumn("machine_id", []string{"M001", "", "M002"}, nil),
	)
	require.NoError(t, repo.SaveTable(ctx, "checks", tbl))
	require.NoError(t, repo.SaveTable(ctx, "checks", tbl))

	got, err := repo.LoadTable(ctx, "checks")
	require.NoError(t, err)
	assert.Equal(t, 6, got.Len())

	ts, _ := got.Column("timestamp")
	assert.True(t, ts.IsNull(1))
	machine, _ := got.Column("machine_id")
	assert.True(t, machine.IsNull(1))

	dev, ok := got.Column("Deviation")
	require.True(t, ok)
	d0, _ := dev.Float(0)
	d1, _ := dev.Float(1)
	assert.InDelta(t, 0.5, d0, 1e-9)
	assert.InDelta(t, 10, d1, 1e-9)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "", nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestLoadTable_MissingTable(t *testing.T) {
	_, err := openSQLite(t).LoadTable(context.Background(), "nope")
	assert.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	got, err := quoteIdent(`Measured "Value"`)
	require.NoError(t, err)
	assert.Equal(t, `"Measured ""Value"""`, got)

	_, err = quoteIdent("  ")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}
