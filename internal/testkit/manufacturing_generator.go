package testkit

import (
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"sentinel/domain/table"
)

// ManufacturingConfig configures the manufacturing quality data generator
type ManufacturingConfig struct {
	Rows  int       `json:"rows" yaml:"rows"`
	Start time.Time `json:"start" yaml:"start"`
	Seed  uint64    `json:"seed" yaml:"seed"`
}

// DefaultManufacturingConfig returns the demo dataset shape: 1000 hourly
// records from 2024-01-01
func DefaultManufacturingConfig() ManufacturingConfig {
	return ManufacturingConfig{
		Rows:  1000,
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:  42,
	}
}

var (
	productionLines = []string{"Line A", "Line B", "Line C"}
	machines        = []string{"M001", "M002", "M003", "M004"}
	operators       = []string{"OP01", "OP02", "OP03"}
	shifts          = []string{"Day", "Night"}
	ncrTypes        = []string{"Dimensional", "Surface", "Material", "Assembly"}
	ncrWeights      = []float64{0.3, 0.3, 0.2, 0.2}
	severities      = []string{"Low", "Medium", "High", "Critical"}
	severityWeights = []float64{0.4, 0.3, 0.2, 0.1}
)

const (
	batchCount       = 50
	hotTemperature   = 80.0
	hotPenalty       = 2.0
	shakyVibration   = 60.0
	vibrationPenalty = 1.0
)

// ManufacturingDataGenerator produces a seeded production-quality table.
// Defect counts rise with temperature above 80 and vibration above 60.
type ManufacturingDataGenerator struct {
	config ManufacturingConfig
	src    rand.Source
	rng    *rand.Rand
}

// NewManufacturingDataGenerator creates a generator; equal configs yield equal tables
func NewManufacturingDataGenerator(config ManufacturingConfig) *ManufacturingDataGenerator {
	src := rand.NewPCG(config.Seed, config.Seed)
	return &ManufacturingDataGenerator{
		config: config,
		src:    src,
		rng:    rand.New(src),
	}
}

// GenerateManufacturing is shorthand for a one-off generator run
func GenerateManufacturing(config ManufacturingConfig) (*table.Table, error) {
	return NewManufacturingDataGenerator(config).Generate()
}

// Generate builds the table
func (g *ManufacturingDataGenerator) Generate() (*table.Table, error) {
	n := g.config.Rows
	if n < 0 {
		n = 0
	}
	start := g.config.Start
	if start.IsZero() {
		start = DefaultManufacturingConfig().Start
	}

	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour)
	}

	lines := g.choose(productionLines, n)
	machineIDs := g.choose(machines, n)
	operatorIDs := g.choose(operators, n)
	temperature := g.normal(75, 5, n)
	pressure := g.normal(100, 10, n)
	vibration := g.normal(50, 8, n)
	quality := g.normal(95, 5, n)

	poisson := distuv.Poisson{Lambda: 2, Src: g.src}
	defects := make([]float64, n)
	for i := range defects {
		defects[i] = poisson.Rand()
	}

	ncr := g.weighted(ncrTypes, ncrWeights, n)
	severity := g.weighted(severities, severityWeights, n)
	shift := g.choose(shifts, n)

	batches := make([]string, n)
	for i := range batches {
		batches[i] = fmt.Sprintf("BATCH_%03d", g.rng.IntN(batchCount)+1)
	}

	for i := range defects {
		if temperature[i] > hotTemperature {
			defects[i] += hotPenalty
		}
		if vibration[i] > shakyVibration {
			defects[i] += vibrationPenalty
		}
	}

	return table.New(
		table.NewTemporalColumn(table.ColTimestamp, times),
		table.NewCategoricalColumn(table.ColProductionLine, lines, nil),
		table.NewCategoricalColumn(table.ColMachineID, machineIDs, nil),
		table.NewCategoricalColumn(table.ColOperatorID, operatorIDs, nil),
		table.NewNumericColumn(table.ColTemperature, temperature),
		table.NewNumericColumn("pressure", pressure),
		table.NewNumericColumn(table.ColVibration, vibration),
		table.NewNumericColumn("quality_score", quality),
		table.NewNumericColumn(table.ColDefectCount, defects),
		table.NewCategoricalColumn(table.ColNCRType, ncr, nil),
		table.NewCategoricalColumn(table.ColSeverity, severity, nil),
		table.NewCategoricalColumn(table.ColShift, shift, nil),
		table.NewCategoricalColumn("material_batch", batches, nil),
	)
}

func (g *ManufacturingDataGenerator) choose(options []string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = options[g.rng.IntN(len(options))]
	}
	return out
}

func (g *ManufacturingDataGenerator) weighted(options []string, weights []float64, n int) []string {
	dist := distuv.NewCategorical(weights, g.src)
	out := make([]string, n)
	for i := range out {
		out[i] = options[int(dist.Rand())]
	}
	return out
}

func (g *ManufacturingDataGenerator) normal(mu, sigma float64, n int) []float64 {
	dist := distuv.Normal{Mu: mu, Sigma: sigma, Src: g.src}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}
