package temporal

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"sentinel/domain/core"
	"sentinel/domain/table"
)

// Granularity is the width of a time bucket
type Granularity string

const (
	Hour Granularity = "hour"
	Day  Granularity = "day"
	Week Granularity = "week"
)

const hourLayout = "2006-01-02 15:00:00"

// ParseGranularity accepts hour, day or week; anything else means hour
func ParseGranularity(s string) Granularity {
	switch g := Granularity(s); g {
	case Day, Week:
		return g
	default:
		return Hour
	}
}

// Floor returns the start of the bucket containing ts, in ts's location.
// Weeks start on Monday.
func (g Granularity) Floor(ts time.Time) time.Time {
	y, m, d := ts.Date()
	switch g {
	case Day:
		return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
	case Week:
		offset := (int(ts.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, ts.Location())
	default:
		return time.Date(y, m, d, ts.Hour(), 0, 0, 0, ts.Location())
	}
}

// Label renders a bucket start. Weeks render as the Monday/Sunday period.
func (g Granularity) Label(start time.Time) string {
	switch g {
	case Day:
		return start.Format(core.DayLayout)
	case Week:
		return start.Format(core.DayLayout) + "/" + start.AddDate(0, 0, 6).Format(core.DayLayout)
	default:
		return start.Format(hourLayout)
	}
}

// Bucket is one aggregated time slot. Numeric targets fill Mean, Sum, Min and
// Max; other targets fill Value with the count.
type Bucket struct {
	Timestamp string   `json:"timestamp" yaml:"timestamp"`
	Count     int      `json:"count" yaml:"count"`
	Mean      *float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Sum       *float64 `json:"sum,omitempty" yaml:"sum,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Value     *int     `json:"value,omitempty" yaml:"value,omitempty"`

	start time.Time
}

// Series is an ascending list of buckets for one column
type Series struct {
	Column  string      `json:"column" yaml:"column"`
	GroupBy Granularity `json:"group_by" yaml:"group_by"`
	Data    []Bucket    `json:"data" yaml:"data"`
}

// Range bounds the rows considered. Nil bounds are open; both are inclusive.
type Range struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether ts lies inside the range
func (r Range) Contains(ts time.Time) bool {
	if r.Start != nil && ts.Before(*r.Start) {
		return false
	}
	if r.End != nil && ts.After(*r.End) {
		return false
	}
	return true
}

// ParseRange builds a Range from optional textual bounds. An unparseable
// bound is an invalid argument rather than an open end.
func ParseRange(start, end string) (Range, error) {
	var r Range
	for _, b := range []struct {
		name, value string
		dst         **time.Time
	}{
		{"start_date", start, &r.Start},
		{"end_date", end, &r.End},
	} {
		if b.value == "" {
			continue
		}
		ts, ok := core.ParseTime(b.value)
		if !ok {
			return Range{}, core.NewInvalidArgumentError("%s %q is not a recognised date", b.name, b.value)
		}
		*b.dst = &ts
	}
	return r, nil
}

// Aggregate buckets column by the table's temporal column. Rows without a
// timestamp or outside r are dropped before bucketing.
func Aggregate(t *table.Table, column string, r Range, g Granularity) (*Series, error) {
	target, ok := t.Column(column)
	if !ok {
		return nil, core.NewColumnNotFoundError(column)
	}
	clock, ok := t.TimeColumn()
	if !ok {
		return nil, core.NewMissingTemporalError()
	}
	g = ParseGranularity(string(g))

	type slot struct {
		start  time.Time
		values []float64
		count  int
	}
	slots := make(map[int64]*slot)
	for i := 0; i < t.Len(); i++ {
		ts, ok := clock.Time(i)
		if !ok || !r.Contains(ts) {
			continue
		}
		start := g.Floor(ts)
		s, seen := slots[start.UnixNano()]
		if !seen {
			s = &slot{start: start}
			slots[start.UnixNano()] = s
		}
		if target.IsNull(i) {
			continue
		}
		s.count++
		if v, ok := target.Float(i); ok {
			s.values = append(s.values, v)
		}
	}

	numeric := target.Type() == table.TypeNumeric
	buckets := make([]Bucket, 0, len(slots))
	for _, s := range slots {
		b := Bucket{Timestamp: g.Label(s.start), Count: s.count, start: s.start}
		if numeric {
			data := stats.Float64Data(s.values)
			sum, err := data.Sum()
			if err != nil {
				sum = 0
			}
			b.Sum = &sum
			b.Mean = present(data.Mean())
			b.Min = present(data.Min())
			b.Max = present(data.Max())
		} else {
			count := s.count
			b.Value = &count
		}
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].start.Before(buckets[j].start) })

	return &Series{Column: column, GroupBy: g, Data: buckets}, nil
}

func present(v float64, err error) *float64 {
	if err != nil {
		return nil
	}
	return &v
}
