package table

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"sentinel/domain/core"
)

// Recognised optional column names in manufacturing quality exports
const (
	ColTimestamp      = "timestamp"
	ColDate           = "date"
	ColProductionLine = "production_line"
	ColMachineID      = "machine_id"
	ColOperatorID     = "operator_id"
	ColDefectCount    = "defect_count"
	ColNCRType        = "ncr_type"
	ColSeverity       = "severity"
	ColShift          = "shift"
	ColTemperature    = "temperature"
	ColVibration      = "vibration"
)

// Table is an ordered, named-column, row-homogeneous dataset. A Table is never
// mutated after New returns; filtering and reordering build new tables.
type Table struct {
	columns    []*Column
	index      map[string]int
	rows       int
	timeColumn int
}

// New assembles a table from columns of equal length
func New(columns ...*Column) (*Table, error) {
	t := &Table{
		columns:    make([]*Column, 0, len(columns)),
		index:      make(map[string]int, len(columns)),
		timeColumn: -1,
	}

	for i, col := range columns {
		if col == nil {
			return nil, fmt.Errorf("%w: column %d is nil", core.ErrInvalidTable, i)
		}
		if strings.TrimSpace(col.Name()) == "" {
			return nil, fmt.Errorf("%w: column %d has no name", core.ErrInvalidTable, i)
		}
		if _, dup := t.index[col.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", core.ErrInvalidTable, col.Name())
		}
		if i == 0 {
			t.rows = col.Len()
		} else if col.Len() != t.rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d",
				core.ErrInvalidTable, col.Name(), col.Len(), t.rows)
		}
		t.index[col.Name()] = len(t.columns)
		t.columns = append(t.columns, col)
	}

	t.timeColumn = t.resolveTimeColumn()
	return t, nil
}

// MustNew is New for fixtures and generators with known-good inputs
func MustNew(columns ...*Column) *Table {
	t, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// resolveTimeColumn prefers "timestamp", then "date", then the first temporal column
func (t *Table) resolveTimeColumn() int {
	for _, name := range []string{ColTimestamp, ColDate} {
		if i, ok := t.index[name]; ok && t.columns[i].Type() == TypeTemporal {
			return i
		}
	}
	for i, col := range t.columns {
		if col.Type() == TypeTemporal {
			return i
		}
	}
	return -1
}

// Len returns the number of rows
func (t *Table) Len() int { return t.rows }

// Width returns the number of columns
func (t *Table) Width() int { return len(t.columns) }

// Columns returns the columns in declaration order
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column looks a column up by name
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Has reports whether every named column exists
func (t *Table) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := t.index[name]; !ok {
			return false
		}
	}
	return true
}

// Names returns column names in declaration order
func (t *Table) Names() []string {
	out := make([]string, len(t.columns))
	for i, col := range t.columns {
		out[i] = col.Name()
	}
	return out
}

// NamesOf returns the names of columns with the given type, in declaration order
func (t *Table) NamesOf(kind ColumnType) []string {
	out := make([]string, 0, len(t.columns))
	for _, col := range t.columns {
		if col.Type() == kind {
			out = append(out, col.Name())
		}
	}
	return out
}

// TimeColumn returns the designated temporal column
func (t *Table) TimeColumn() (*Column, bool) {
	if t.timeColumn < 0 {
		return nil, false
	}
	return t.columns[t.timeColumn], true
}

// Take builds a new table holding the given rows in the given order
func (t *Table) Take(rows []int) *Table {
	out := &Table{
		columns:    make([]*Column, len(t.columns)),
		index:      make(map[string]int, len(t.index)),
		rows:       len(rows),
		timeColumn: t.timeColumn,
	}
	for name, i := range t.index {
		out.index[name] = i
	}
	for i, col := range t.columns {
		out.columns[i] = col.take(rows)
	}
	return out
}

// Where keeps the rows for which keep returns true
func (t *Table) Where(keep func(row int) bool) *Table {
	rows := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return t.Take(rows)
}

// Head returns up to n leading rows
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > t.rows {
		n = t.rows
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return t.Take(rows)
}

// ChronologicalOrder returns row indices sorted by the temporal column. Rows
// without a timestamp go last; ties keep row order.
func (t *Table) ChronologicalOrder() ([]int, bool) {
	tc, ok := t.TimeColumn()
	if !ok {
		return nil, false
	}
	rows := make([]int, t.rows)
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool {
		ta, okA := tc.Time(rows[a])
		tb, okB := tc.Time(rows[b])
		if okA != okB {
			return okA
		}
		return okA && ta.Before(tb)
	})
	return rows, true
}

// Row renders one row as a name → value map with temporal values formatted by layout
func (t *Table) Row(i int, layout string) map[string]any {
	row := make(map[string]any, len(t.columns))
	for _, col := range t.columns {
		row[col.Name()] = col.Render(i, layout)
	}
	return row
}

// Fingerprint hashes the schema and every cell; equal tables share a fingerprint
func (t *Table) Fingerprint() core.Hash {
	var buf bytes.Buffer
	for _, col := range t.columns {
		fmt.Fprintf(&buf, "%s:%s;", col.Name(), col.Type())
	}
	for i := 0; i < t.rows; i++ {
		for _, col := range t.columns {
			if key, ok := col.Key(i); ok {
				buf.WriteString(key)
			} else {
				buf.WriteByte(0)
			}
			buf.WriteByte(0x1f)
		}
		buf.WriteByte('\n')
	}
	return core.NewHash(buf.Bytes())
}
