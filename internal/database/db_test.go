package database

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndLoadTable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tbl := airquality.Table{
		Fields: []string{"temperature", "pm2.5_atm"},
		Rows: []airquality.Row{
			{Timestamp: 1654041600, Values: []float64{70.5, 8.2}},
			{Timestamp: 1654128000, Values: []float64{72, math.NaN()}},
		},
	}.WithSensorID(99389)

	n, err := db.SaveTable(ctx, 99389, tbl)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	again, err := db.SaveTable(ctx, 99389, tbl)
	require.NoError(t, err)
	assert.Equal(t, 0, again, "duplicates are ignored")

	got, err := db.LoadTable(ctx, 99389, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"pm2.5_atm", "temperature"}, got.Fields)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, []float64{8.2, 70.5}, got.Rows[0].Values)
	assert.True(t, math.IsNaN(got.Rows[1].Values[0]))

	windowed, err := db.LoadTable(ctx, 99389, time.Unix(1654100000, 0), time.Time{})
	require.NoError(t, err)
	require.Len(t, windowed.Rows, 1)
	assert.Equal(t, int64(1654128000), windowed.Rows[0].Timestamp)
}

func TestSinkSplitsBySensor(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := airquality.Table{Fields: []string{"temperature"}, Rows: []airquality.Row{{Timestamp: 100, Values: []float64{1}}}}
	b := airquality.Table{Fields: []string{"temperature"}, Rows: []airquality.Row{
		{Timestamp: 100, Values: []float64{2}},
		{Timestamp: 200, Values: []float64{3}},
	}}
	report := &airquality.Report{ID: "r1", Combined: airquality.Concat(a.WithSensorID(1), b.WithSensorID(2))}

	require.NoError(t, NewSink(db, nil).Handle(ctx, report))

	sensors, err := db.ListSensors(ctx)
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, SensorSummary{SensorID: 1, Rows: 1, First: time.Unix(100, 0).UTC(), Last: time.Unix(100, 0).UTC()}, sensors[0])
	assert.Equal(t, 2, sensors[1].Rows)
	assert.Equal(t, time.Unix(200, 0).UTC(), sensors[1].Last)
}

func TestSaveReportRequiresSensorColumn(t *testing.T) {
	db := openTestDB(t)
	_, err := db.SaveReport(context.Background(), airquality.Report{Combined: airquality.Table{Fields: []string{"temperature"}}})
	assert.Error(t, err)
}
