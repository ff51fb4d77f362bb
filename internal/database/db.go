package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite allows a single writer
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables. Readings are stored in long
// format so any requested field list fits.
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sensor_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sensor_id INTEGER NOT NULL,
		time_stamp INTEGER NOT NULL,
		field TEXT NOT NULL,
		value REAL,
		created_at TEXT NOT NULL,
		UNIQUE(sensor_id, time_stamp, field)
	);
	CREATE INDEX IF NOT EXISTS idx_readings_sensor ON sensor_readings(sensor_id);
	CREATE INDEX IF NOT EXISTS idx_readings_time ON sensor_readings(time_stamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SaveTable stores every cell of a sensor table, ignoring duplicates.
// The sensor_id column, if present, is not stored as a field.
// It returns the number of newly inserted cells.
func (db *DB) SaveTable(ctx context.Context, sensorID int, t airquality.Table) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO sensor_readings (sensor_id, time_stamp, field, value, created_at)
	VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	createdAt := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for _, r := range t.Rows {
		for i, field := range t.Fields {
			if field == airquality.SensorIDColumn {
				continue
			}
			var value interface{}
			if v := r.Values[i]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				value = v
			}
			res, err := stmt.ExecContext(ctx, sensorID, r.Timestamp, field, value, createdAt)
			if err != nil {
				return 0, fmt.Errorf("inserting reading: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing readings: %w", err)
	}
	return inserted, nil
}

// SaveReport stores the combined rows of a report, split by sensor_id.
func (db *DB) SaveReport(ctx context.Context, report airquality.Report) (int, error) {
	idx := report.Combined.FieldIndex(airquality.SensorIDColumn)
	if idx < 0 {
		return 0, fmt.Errorf("report %s has no %s column", report.ID, airquality.SensorIDColumn)
	}

	bySensor := make(map[int][]airquality.Row)
	for _, r := range report.Combined.Rows {
		id := int(r.Values[idx])
		bySensor[id] = append(bySensor[id], r)
	}

	total := 0
	for id, rows := range bySensor {
		n, err := db.SaveTable(ctx, id, airquality.Table{Fields: report.Combined.Fields, Rows: rows})
		if err != nil {
			return total, fmt.Errorf("sensor %d: %w", id, err)
		}
		total += n
	}
	return total, nil
}

// LoadTable rebuilds a sensor's table from stored cells, optionally limited
// to [from, to] (zero values mean unbounded). Fields are sorted by name.
func (db *DB) LoadTable(ctx context.Context, sensorID int, from, to time.Time) (airquality.Table, error) {
	query := `
	SELECT time_stamp, field, value
	FROM sensor_readings
	WHERE sensor_id = ? AND time_stamp >= ? AND time_stamp <= ?
	ORDER BY time_stamp ASC
	`
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !from.IsZero() {
		lo = from.Unix()
	}
	if !to.IsZero() {
		hi = to.Unix()
	}

	rows, err := db.conn.QueryContext(ctx, query, sensorID, lo, hi)
	if err != nil {
		return airquality.Table{}, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	cells := make(map[int64]map[string]float64)
	var stamps []int64
	fieldSet := make(map[string]struct{})
	for rows.Next() {
		var ts int64
		var field string
		var value sql.NullFloat64
		if err := rows.Scan(&ts, &field, &value); err != nil {
			return airquality.Table{}, fmt.Errorf("scanning row: %w", err)
		}
		if _, ok := cells[ts]; !ok {
			cells[ts] = make(map[string]float64)
			stamps = append(stamps, ts)
		}
		v := math.NaN()
		if value.Valid {
			v = value.Float64
		}
		cells[ts][field] = v
		fieldSet[field] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return airquality.Table{}, err
	}

	fields := make([]string, 0, len(fieldSet))
	for f := range fieldSet {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	t := airquality.Table{Fields: fields, Rows: make([]airquality.Row, 0, len(stamps))}
	for _, ts := range stamps {
		vals := make([]float64, len(fields))
		for i, f := range fields {
			v, ok := cells[ts][f]
			if !ok {
				v = math.NaN()
			}
			vals[i] = v
		}
		t.Rows = append(t.Rows, airquality.Row{Timestamp: ts, Values: vals})
	}
	return t, nil
}

// SensorSummary describes what is stored for one sensor.
type SensorSummary struct {
	SensorID int
	Rows     int
	First    time.Time
	Last     time.Time
}

// ListSensors summarizes stored readings per sensor, ordered by id.
func (db *DB) ListSensors(ctx context.Context) ([]SensorSummary, error) {
	query := `
	SELECT sensor_id, COUNT(DISTINCT time_stamp), MIN(time_stamp), MAX(time_stamp)
	FROM sensor_readings
	GROUP BY sensor_id
	ORDER BY sensor_id
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	var results []SensorSummary
	for rows.Next() {
		var s SensorSummary
		var first, last int64
		if err := rows.Scan(&s.SensorID, &s.Rows, &first, &last); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		s.First = time.Unix(first, 0).UTC()
		s.Last = time.Unix(last, 0).UTC()
		results = append(results, s)
	}

	return results, rows.Err()
}
