package airquality

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MeanByTimestamp groups rows by timestamp and averages every column.
// Same-timestamp rows from different sensors are treated as repeated
// measurements with equal weight. NaN cells are skipped; a column with no
// readings at a timestamp stays NaN. Output is ordered by timestamp.
func MeanByTimestamp(t Table) Table {
	groups := make(map[int64][]Row)
	for _, r := range t.Rows {
		groups[r.Timestamp] = append(groups[r.Timestamp], r)
	}

	stamps := make([]int64, 0, len(groups))
	for ts := range groups {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	out := Table{
		Fields: append([]string(nil), t.Fields...),
		Rows:   make([]Row, 0, len(stamps)),
	}
	buf := make([]float64, 0, 8)
	for _, ts := range stamps {
		rows := groups[ts]
		vals := make([]float64, len(t.Fields))
		for col := range vals {
			buf = buf[:0]
			for _, r := range rows {
				if v := r.Values[col]; !math.IsNaN(v) {
					buf = append(buf, v)
				}
			}
			if len(buf) == 0 {
				vals[col] = math.NaN()
				continue
			}
			vals[col] = stat.Mean(buf, nil)
		}
		out.Rows = append(out.Rows, Row{Timestamp: ts, Values: vals})
	}
	return out
}

// ColumnSummary describes the finite values of one column.
type ColumnSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize computes per-column statistics for every field of t.
// Columns with no finite values are omitted.
func Summarize(t Table) map[string]ColumnSummary {
	out := make(map[string]ColumnSummary, len(t.Fields))
	for _, name := range t.Fields {
		col, _ := t.Column(name)
		finite := col[:0:0]
		for _, v := range col {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				finite = append(finite, v)
			}
		}
		if len(finite) == 0 {
			continue
		}
		s := ColumnSummary{
			Count: len(finite),
			Min:   floats.Min(finite),
			Max:   floats.Max(finite),
		}
		if len(finite) > 1 {
			s.Mean, s.StdDev = stat.MeanStdDev(finite, nil)
		} else {
			s.Mean = finite[0]
		}
		out[name] = s
	}
	return out
}
