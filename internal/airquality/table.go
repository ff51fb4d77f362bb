package airquality

import (
	"encoding/json"
	"fmt"
	"math"
)

const (
	// TimestampColumn is the leading column of every sensor table.
	TimestampColumn = "time_stamp"
	// SensorIDColumn is added when a table is tagged with its sensor.
	SensorIDColumn = "sensor_id"
)

// Row is one timestamped observation. Values line up with Table.Fields;
// a missing reading is NaN.
type Row struct {
	Timestamp int64
	Values    []float64
}

// Table is a column-named set of sensor rows, timestamp first.
type Table struct {
	Fields []string
	Rows   []Row
}

// Columns returns the full header, time_stamp included.
func (t Table) Columns() []string {
	cols := make([]string, 0, len(t.Fields)+1)
	cols = append(cols, TimestampColumn)
	return append(cols, t.Fields...)
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// FieldIndex returns the position of name within Fields, or -1.
func (t Table) FieldIndex(name string) int {
	for i, f := range t.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// Column returns the values of a named field. time_stamp is accepted too.
func (t Table) Column(name string) ([]float64, bool) {
	if name == TimestampColumn {
		out := make([]float64, len(t.Rows))
		for i, r := range t.Rows {
			out[i] = float64(r.Timestamp)
		}
		return out, true
	}
	idx := t.FieldIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Values[idx]
	}
	return out, true
}

// WithColumn returns a copy of t with a constant column appended to every row.
func (t Table) WithColumn(name string, value float64) Table {
	out := Table{
		Fields: append(append([]string(nil), t.Fields...), name),
		Rows:   make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		vals := make([]float64, 0, len(r.Values)+1)
		vals = append(vals, r.Values...)
		out.Rows[i] = Row{Timestamp: r.Timestamp, Values: append(vals, value)}
	}
	return out
}

// WithSensorID tags every row with the given sensor identifier.
func (t Table) WithSensorID(sensorID int) Table {
	return t.WithColumn(SensorIDColumn, float64(sensorID))
}

// Concat unions tables row-wise. Columns are matched by name in first-seen
// order; a table lacking a column contributes NaN for it.
func Concat(tables ...Table) Table {
	var fields []string
	seen := make(map[string]int)
	total := 0
	for _, t := range tables {
		total += len(t.Rows)
		for _, f := range t.Fields {
			if _, ok := seen[f]; !ok {
				seen[f] = len(fields)
				fields = append(fields, f)
			}
		}
	}

	out := Table{Fields: fields, Rows: make([]Row, 0, total)}
	for _, t := range tables {
		mapping := make([]int, len(t.Fields))
		for i, f := range t.Fields {
			mapping[i] = seen[f]
		}
		for _, r := range t.Rows {
			vals := make([]float64, len(fields))
			for i := range vals {
				vals[i] = math.NaN()
			}
			for i, v := range r.Values {
				vals[mapping[i]] = v
			}
			out.Rows = append(out.Rows, Row{Timestamp: r.Timestamp, Values: vals})
		}
	}
	return out
}

// MarshalJSON renders the table as {"columns": [...], "rows": [[...], ...]}
// with NaN emitted as null.
func (t Table) MarshalJSON() ([]byte, error) {
	rows := make([][]interface{}, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]interface{}, 0, len(r.Values)+1)
		row = append(row, r.Timestamp)
		for _, v := range r.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row = append(row, nil)
				continue
			}
			row = append(row, v)
		}
		rows[i] = row
	}
	return json.Marshal(struct {
		Columns []string        `json:"columns"`
		Rows    [][]interface{} `json:"rows"`
	}{Columns: t.Columns(), Rows: rows})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw struct {
		Columns []string     `json:"columns"`
		Rows    [][]*float64 `json:"rows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Columns) == 0 {
		*t = Table{}
		return nil
	}
	if raw.Columns[0] != TimestampColumn {
		return fmt.Errorf("first column must be %s, got %q", TimestampColumn, raw.Columns[0])
	}
	fields := raw.Columns[1:]
	rows, err := rowsFromCells(raw.Rows, len(fields))
	if err != nil {
		return err
	}
	*t = Table{Fields: fields, Rows: rows}
	return nil
}

// rowsFromCells converts timestamp-first numeric rows into Rows.
func rowsFromCells(cells [][]*float64, width int) ([]Row, error) {
	rows := make([]Row, 0, len(cells))
	for i, cell := range cells {
		if len(cell) != width+1 {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(cell), width+1)
		}
		if cell[0] == nil {
			return nil, fmt.Errorf("row %d has no timestamp", i)
		}
		vals := make([]float64, width)
		for j := range vals {
			if v := cell[j+1]; v != nil {
				vals[j] = *v
			} else {
				vals[j] = math.NaN()
			}
		}
		rows = append(rows, Row{Timestamp: int64(*cell[0]), Values: vals})
	}
	return rows, nil
}
