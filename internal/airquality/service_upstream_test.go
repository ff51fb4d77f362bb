package airquality_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/airquality/providers"
)

// Odd sensor ids fail with 500, even ones return one daily row.
func TestRunAnalysisAgainstUpstreamKeepsPerSensorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		id, err := strconv.Atoi(parts[2])
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if id%2 == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"InternalError","description":"sensor offline"}`))
			return
		}
		fmt.Fprintf(w, `{"fields":["time_stamp","temperature"],"data":[[1654041600,%d]]}`, 60+id)
	}))
	defer server.Close()

	p := providers.NewPurpleAirProvider(server.Client(), "test-key", providers.WithBaseURL(server.URL))
	svc := airquality.NewService(nil, airquality.Providers{History: p}, airquality.WithWorkers(3))

	plan := airquality.AnalysisPlan{
		SensorIDs: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		Fields:    "temperature",
		Start:     "2022/06/01",
		End:       "2022/06/02",
	}
	report, err := svc.RunAnalysis(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, report.Sensors, len(plan.SensorIDs))

	for i, s := range report.Sensors {
		assert.Equal(t, plan.SensorIDs[i], s.SensorID)
		assert.Empty(t, s.Error, "sensor %d", s.SensorID)
		if s.SensorID%2 == 1 {
			assert.False(t, s.OK)
			assert.Equal(t, http.StatusInternalServerError, s.StatusCode, "sensor %d", s.SensorID)
			assert.Equal(t, "InternalError: sensor offline", s.Message)
			continue
		}
		assert.True(t, s.OK)
		assert.Equal(t, http.StatusOK, s.StatusCode, "sensor %d", s.SensorID)
		assert.Equal(t, 1, s.Rows)
	}
	assert.Len(t, report.Failed(), 5)

	require.Equal(t, 1, report.Average.Len())
	temp, ok := report.Average.Column("temperature")
	require.True(t, ok)
	// mean of 62, 64, 66, 68, 70
	assert.Equal(t, []float64{66}, temp)
}
