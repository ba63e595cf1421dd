package excel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"sentinel/domain/table"
)

// CoercionConfig defines the share of non-empty cells that must parse before a
// column takes a type
type CoercionConfig struct {
	NumericThreshold   float64 `json:"numeric_threshold" yaml:"numeric_threshold"`
	TimestampThreshold float64 `json:"timestamp_threshold" yaml:"timestamp_threshold"`
}

// DefaultCoercionConfig returns sensible defaults
func DefaultCoercionConfig() CoercionConfig {
	return CoercionConfig{
		NumericThreshold:   0.8, // 80% must parse as numbers
		TimestampThreshold: 0.8, // 80% must parse as timestamps
	}
}

// TypeCoercer decides column types and converts raw cells. Raw cells are
// strings from files or driver values from database rows.
type TypeCoercer struct {
	config CoercionConfig
}

// NewTypeCoercer creates a coercer with the given config
func NewTypeCoercer(config CoercionConfig) *TypeCoercer {
	return &TypeCoercer{config: config}
}

// TypeAnalysis contains the results of type distribution analysis
type TypeAnalysis struct {
	TotalCount      int              `json:"total_count"`
	ValidCount      int              `json:"valid_count"`
	NumericCount    int              `json:"numeric_count"`
	TimestampCount  int              `json:"timestamp_count"`
	NumericRatio    float64          `json:"numeric_ratio"`
	TimestampRatio  float64          `json:"timestamp_ratio"`
	RecommendedType table.ColumnType `json:"recommended_type"`
}

// timestampFormats are tried in order; the Excel-style entries cover
// formatted date cells
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/06 15:04",
	"01-02-06",
	"2006/01/02",
	"02-Jan-2006",
}

// AnalyzeTypeDistribution counts how many non-empty values parse as each type.
// A column named timestamp or date is checked for the temporal type first.
func (c *TypeCoercer) AnalyzeTypeDistribution(name string, values []any) TypeAnalysis {
	analysis := TypeAnalysis{TotalCount: len(values)}

	for _, val := range values {
		if isEmpty(val) {
			continue
		}
		analysis.ValidCount++
		if _, ok := c.ParseNumeric(val); ok {
			analysis.NumericCount++
		}
		if _, ok := c.ParseTimestamp(val); ok {
			analysis.TimestampCount++
		}
	}

	if analysis.ValidCount > 0 {
		analysis.NumericRatio = float64(analysis.NumericCount) / float64(analysis.ValidCount)
		analysis.TimestampRatio = float64(analysis.TimestampCount) / float64(analysis.ValidCount)
	}
	analysis.RecommendedType = c.determineRecommendedType(name, analysis)
	return analysis
}

func (c *TypeCoercer) determineRecommendedType(name string, analysis TypeAnalysis) table.ColumnType {
	if analysis.ValidCount == 0 {
		return table.TypeCategorical
	}
	lower := strings.ToLower(name)
	if (lower == table.ColTimestamp || lower == table.ColDate) && analysis.TimestampRatio >= c.config.TimestampThreshold {
		return table.TypeTemporal
	}
	if analysis.NumericRatio >= c.config.NumericThreshold {
		return table.TypeNumeric
	}
	if analysis.TimestampRatio >= c.config.TimestampThreshold {
		return table.TypeTemporal
	}
	return table.TypeCategorical
}

// BuildColumn types a raw column and converts it. Cells that do not parse as
// the chosen type become missing.
func (c *TypeCoercer) BuildColumn(name string, values []any) *table.Column {
	switch c.AnalyzeTypeDistribution(name, values).RecommendedType {
	case table.TypeNumeric:
		nums := make([]float64, len(values))
		for i, v := range values {
			if f, ok := c.ParseNumeric(v); ok {
				nums[i] = f
			} else {
				nums[i] = math.NaN()
			}
		}
		return table.NewNumericColumn(name, nums)
	case table.TypeTemporal:
		times := make([]time.Time, len(values))
		for i, v := range values {
			times[i], _ = c.ParseTimestamp(v)
		}
		return table.NewTemporalColumn(name, times)
	default:
		strs := make([]string, len(values))
		valid := make([]bool, len(values))
		for i, v := range values {
			if !isEmpty(v) {
				strs[i] = strings.TrimSpace(toString(v))
				valid[i] = strs[i] != ""
			}
		}
		return table.NewCategoricalColumn(name, strs, valid)
	}
}

// BuildTable types every column of a row-major grid. Short rows are padded
// with missing cells.
func (c *TypeCoercer) BuildTable(headers []string, rows [][]any) (*table.Table, error) {
	columns := make([]*table.Column, len(headers))
	for j, name := range headers {
		values := make([]any, len(rows))
		for i, row := range rows {
			if j < len(row) {
				values[i] = row[j]
			}
		}
		columns[j] = c.BuildColumn(name, values)
	}
	return table.New(columns...)
}

// ParseNumeric accepts driver numbers and number-like strings. Strings may
// carry thousands separators, currency symbols, a percent sign or
// accounting parentheses.
func (c *TypeCoercer) ParseNumeric(raw any) (float64, bool) {
	var val float64
	switch v := raw.(type) {
	case float64:
		val = v
	case float32:
		val = float64(v)
	case int:
		val = float64(v)
	case int32:
		val = float64(v)
	case int64:
		val = float64(v)
	case uint64:
		val = float64(v)
	case []byte:
		return c.parseNumericString(string(v))
	case string:
		return c.parseNumericString(v)
	default:
		return 0, false
	}
	if math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	return val, true
}

func (c *TypeCoercer) parseNumericString(strVal string) (float64, bool) {
	cleanVal := strings.TrimSpace(strVal)
	if cleanVal == "" {
		return 0, false
	}

	// (123) -> -123
	isNegative := false
	if strings.HasPrefix(cleanVal, "(") && strings.HasSuffix(cleanVal, ")") {
		cleanVal = strings.TrimSuffix(strings.TrimPrefix(cleanVal, "("), ")")
		isNegative = true
	}

	for _, symbol := range []string{"$", "€", "£", "¥", "USD", "EUR", "GBP", "JPY", "%"} {
		cleanVal = strings.ReplaceAll(cleanVal, symbol, "")
	}
	cleanVal = strings.TrimSpace(cleanVal)

	hasComma := strings.Contains(cleanVal, ",")
	hasPeriod := strings.Contains(cleanVal, ".")
	hasSpace := strings.Contains(cleanVal, " ")

	switch {
	case hasComma && (hasPeriod || hasSpace):
		// 1.234,56 or 1 234,56 when the tail after the last comma is short
		commaIdx := strings.LastIndex(cleanVal, ",")
		afterComma := cleanVal[commaIdx+1:]
		if len(afterComma) <= 3 && strings.Trim(afterComma, "0123456789") == "" {
			cleanVal = strings.ReplaceAll(cleanVal, ".", "")
			cleanVal = strings.ReplaceAll(cleanVal, " ", "")
			cleanVal = strings.ReplaceAll(cleanVal, ",", ".")
		} else {
			cleanVal = strings.ReplaceAll(cleanVal, ",", "")
		}
	case hasComma && thousandsGrouped(cleanVal):
		cleanVal = strings.ReplaceAll(cleanVal, ",", "")
	case hasComma:
		cleanVal = strings.ReplaceAll(cleanVal, ",", ".")
	default:
		cleanVal = strings.ReplaceAll(cleanVal, " ", "")
	}

	if isNegative {
		cleanVal = "-" + cleanVal
	}

	val, err := strconv.ParseFloat(cleanVal, 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	return val, true
}

// thousandsGrouped reports whether s reads as 1,234 or 12,345,678: a leading
// group of one to three digits not starting with 0, then groups of exactly
// three digits
func thousandsGrouped(s string) bool {
	groups := strings.Split(s, ",")
	lead := groups[0]
	if len(lead) == 0 || len(lead) > 3 || lead[0] == '0' || !allDigits(lead) {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 || !allDigits(g) {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}

// ParseTimestamp accepts time.Time and the layouts in timestampFormats.
// Zoneless strings are read as UTC.
func (c *TypeCoercer) ParseTimestamp(raw any) (time.Time, bool) {
	var strVal string
	switch v := raw.(type) {
	case time.Time:
		return v, !v.IsZero()
	case []byte:
		strVal = string(v)
	case string:
		strVal = v
	default:
		return time.Time{}, false
	}
	strVal = strings.TrimSpace(strVal)
	if strVal == "" {
		return time.Time{}, false
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, strVal); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isEmpty(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	case []byte:
		return strings.TrimSpace(string(s)) == ""
	case time.Time:
		return s.IsZero()
	}
	return false
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
