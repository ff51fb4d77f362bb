package airquality

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryResultTable(t *testing.T) {
	res := HistoryResult{
		SensorID: 99389,
		Outcome:  Success(200),
		Payload:  []byte(`{"data":[[1654041600,20.1,5.0,6.0]]}`),
		Fields:   SplitFields("temperature,pm2.5_atm,pm10.0_atm"),
	}

	tbl, err := res.Table()
	require.NoError(t, err)
	assert.Equal(t, []string{"time_stamp", "temperature", "pm2.5_atm", "pm10.0_atm"}, tbl.Columns())
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, int64(1654041600), tbl.Rows[0].Timestamp)
	assert.Equal(t, []float64{20.1, 5.0, 6.0}, tbl.Rows[0].Values)

	tagged := tbl.WithSensorID(res.SensorID)
	ids, ok := tagged.Column(SensorIDColumn)
	require.True(t, ok)
	assert.Equal(t, []float64{99389}, ids)
}

func TestHistoryResultTablePrefersPayloadFields(t *testing.T) {
	res := HistoryResult{
		Outcome: Success(200),
		Payload: []byte(`{"fields":["time_stamp","pm2.5_atm","temperature"],"data":[[1,2,3],[4,null,6]]}`),
		Fields:  []string{"temperature", "pm2.5_atm"},
	}
	tbl, err := res.Table()
	require.NoError(t, err)
	assert.Equal(t, []string{"pm2.5_atm", "temperature"}, tbl.Fields)
	require.Len(t, tbl.Rows, 2)
	assert.True(t, tbl.Rows[1].Values[0] != tbl.Rows[1].Values[0], "null decodes to NaN")
}

func TestHistoryResultTableErrors(t *testing.T) {
	_, err := HistoryResult{Outcome: Failure(404, "not found")}.Table()
	assert.True(t, errors.Is(err, ErrNoPayload))

	_, err = HistoryResult{Outcome: Success(200), Payload: []byte(`{"data":[[1,2]]}`), Fields: []string{"a", "b"}}.Table()
	assert.Error(t, err)

	_, err = HistoryResult{Outcome: Success(200), Payload: []byte(`not json`), Fields: []string{"a"}}.Table()
	assert.Error(t, err)

	empty, err := HistoryResult{Outcome: Success(200), Payload: []byte(`{"data":[]}`), Fields: []string{"a"}}.Table()
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestSplitFields(t *testing.T) {
	assert.Equal(t, []string{"temperature", "pm2.5_atm"}, SplitFields(" temperature, ,pm2.5_atm,"))
	assert.Nil(t, SplitFields(""))
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("-1.2, 52.9,-0.9,53.1")
	require.NoError(t, err)
	assert.Equal(t, BBox{-1.2, 52.9, -0.9, 53.1}, b)

	for _, in := range []string{"1,2,3", "a,b,c,d", "-200,0,0,1", "0,-95,1,1", "2,0,1,1"} {
		_, err := ParseBBox(in)
		assert.ErrorIs(t, err, ErrInvalidBBox, in)
	}
}

func TestCatalogRecords(t *testing.T) {
	res := CatalogResult{
		Outcome: Success(200),
		Payload: []byte(`{"type":"FeatureCollection","features":[{"id":"S2A_1","properties":{"eo:cloud_cover":12.5}}]}`),
	}
	recs, err := res.Records()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "S2A_1", recs[0].ID)
	assert.Equal(t, 12.5, recs[0].Properties["eo:cloud_cover"])

	_, err = CatalogResult{Outcome: Failure(500, "boom")}.Records()
	assert.ErrorIs(t, err, ErrNoPayload)
}

func TestAnalysisPlanKey(t *testing.T) {
	p := AnalysisPlan{SensorIDs: []int{1, 2}, Fields: "temperature", Start: "2022/06/01", End: "2022/06/02"}
	assert.Equal(t, "1,2|temperature|2022/06/01-2022/06/02", p.Key())
}

func TestBBoxIsZero(t *testing.T) {
	assert.True(t, BBox{}.IsZero())
	assert.False(t, BBox{0, 0, 0, 1}.IsZero())
}
