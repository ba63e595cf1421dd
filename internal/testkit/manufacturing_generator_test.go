package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/domain/table"
)

func TestManufacturingGenerator_Shape(t *testing.T) {
	tbl, err := GenerateManufacturing(DefaultManufacturingConfig())
	require.NoError(t, err)

	assert.Equal(t, 1000, tbl.Len())
	assert.Equal(t, 13, tbl.Width())
	assert.True(t, tbl.Has(
		table.ColTimestamp, table.ColProductionLine, table.ColMachineID, table.ColOperatorID,
		table.ColDefectCount, table.ColNCRType, table.ColSeverity, table.ColShift,
		table.ColTemperature, table.ColVibration,
	))
	assert.ElementsMatch(t,
		[]string{"temperature", "pressure", "vibration", "quality_score", "defect_count"},
		tbl.NamesOf(table.TypeNumeric))

	ts, ok := tbl.TimeColumn()
	require.True(t, ok)
	first, _ := ts.Time(0)
	last, _ := ts.Time(999)
	assert.Equal(t, DefaultManufacturingConfig().Start, first)
	assert.Equal(t, 999.0, last.Sub(first).Hours())
}

func TestManufacturingGenerator_Deterministic(t *testing.T) {
	a, err := GenerateManufacturing(DefaultManufacturingConfig())
	require.NoError(t, err)
	b, err := GenerateManufacturing(DefaultManufacturingConfig())
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	cfg := DefaultManufacturingConfig()
	cfg.Seed = 7
	c, err := GenerateManufacturing(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestManufacturingGenerator_CategoriesStayInVocabulary(t *testing.T) {
	tbl, err := GenerateManufacturing(DefaultManufacturingConfig())
	require.NoError(t, err)

	for name, vocab := range map[string][]string{
		table.ColProductionLine: productionLines,
		table.ColMachineID:      machines,
		table.ColOperatorID:     operators,
		table.ColNCRType:        ncrTypes,
		table.ColSeverity:       severities,
		table.ColShift:          shifts,
	} {
		col, ok := tbl.Column(name)
		require.True(t, ok, name)
		for _, vc := range col.ValueCounts() {
			assert.Contains(t, vocab, vc.Value, name)
		}
	}
}

func TestManufacturingGenerator_HeatRaisesDefects(t *testing.T) {
	cfg := DefaultManufacturingConfig()
	cfg.Rows = 3000
	tbl, err := GenerateManufacturing(cfg)
	require.NoError(t, err)

	temp, _ := tbl.Column(table.ColTemperature)
	defects, _ := tbl.Column(table.ColDefectCount)

	var hotSum, coolSum float64
	var hot, cool int
	for i := 0; i < tbl.Len(); i++ {
		tv, _ := temp.Float(i)
		dv, _ := defects.Float(i)
		assert.GreaterOrEqual(t, dv, 0.0)
		if tv > hotTemperature {
			hotSum += dv
			hot++
		} else {
			coolSum += dv
			cool++
		}
	}
	require.NotZero(t, hot)
	require.NotZero(t, cool)
	assert.Greater(t, hotSum/float64(hot), coolSum/float64(cool)+1)
}

func TestManufacturingGenerator_EmptyConfig(t *testing.T) {
	tbl, err := GenerateManufacturing(ManufacturingConfig{})
	require.NoError(t, err)
	assert.Zero(t, tbl.Len())
}
