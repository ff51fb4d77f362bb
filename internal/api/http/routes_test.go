package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/airquality/providers"
	"github.com/i474232898/airquality-aggregation/internal/store"
)

type stubUpstream struct {
	history func(req airquality.HistoryRequest) (airquality.HistoryResult, error)
	search  func(q airquality.CatalogQuery) (airquality.CatalogResult, error)
	keyType string
	lastKey string
}

func (s *stubUpstream) History(_ context.Context, req airquality.HistoryRequest) (airquality.HistoryResult, error) {
	if _, err := airquality.ParseDateRange(req.Start, req.End); err != nil {
		return airquality.HistoryResult{}, err
	}
	return s.history(req)
}

func (s *stubUpstream) Search(_ context.Context, q airquality.CatalogQuery) (airquality.CatalogResult, error) {
	return s.search(q)
}

func (s *stubUpstream) CheckKey(_ context.Context, key string) (airquality.KeyCheckResult, error) {
	s.lastKey = key
	if key != "good" {
		return airquality.KeyCheckResult{Outcome: airquality.Failure(403, "ApiKeyInvalidError")}, nil
	}
	return airquality.KeyCheckResult{Outcome: airquality.Success(200), KeyType: s.keyType}, nil
}

func okHistory(req airquality.HistoryRequest) (airquality.HistoryResult, error) {
	payload := fmt.Sprintf(`{"fields":["time_stamp","temperature"],"data":[[1654041600,%d]]}`, 60+req.SensorID)
	return airquality.HistoryResult{
		SensorID: req.SensorID,
		Outcome:  airquality.Success(200),
		Payload:  json.RawMessage(payload),
		Fields:   req.FieldList(),
	}, nil
}

var defaultPlan = airquality.AnalysisPlan{
	SensorIDs: []int{1, 2},
	Fields:    "temperature",
	Start:     "2022/06/01",
	End:       "2022/06/02",
}

func newTestApp(up *stubUpstream) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	svc := airquality.NewService(
		store.NewMemoryStore(10, time.Hour),
		airquality.Providers{History: up, Catalog: up, Keys: up},
	)
	RegisterRoutes(app, svc, defaultPlan)
	return app
}

func doJSON(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return resp.StatusCode, out
}

func TestSensorHistory(t *testing.T) {
	app := newTestApp(&stubUpstream{history: okHistory})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors/7/history?start=2022/06/01&end=2022/06/02", nil)
	code, body := doJSON(t, app, req)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(7), body["sensorId"])
	assert.NotNil(t, body["payload"])
}

func TestSensorHistoryValidation(t *testing.T) {
	app := newTestApp(&stubUpstream{history: okHistory})

	cases := map[string]string{
		"non numeric id": "/api/v1/sensors/abc/history?start=2022/06/01&end=2022/06/02",
		"missing start":  "/api/v1/sensors/7/history?end=2022/06/02",
		"bad date":       "/api/v1/sensors/7/history?start=2022-06-01&end=2022/06/02",
		"reversed range": "/api/v1/sensors/7/history?start=2022/06/05&end=2022/06/02",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			code, body := doJSON(t, app, httptest.NewRequest(http.MethodGet, target, nil))
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, true, body["error"])
		})
	}
}

func TestSensorHistoryUpstreamFailure(t *testing.T) {
	app := newTestApp(&stubUpstream{history: func(req airquality.HistoryRequest) (airquality.HistoryResult, error) {
		return airquality.HistoryResult{SensorID: req.SensorID, Outcome: airquality.Failure(404, "NotFoundError")}, nil
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors/7/history?start=2022/06/01&end=2022/06/02", nil)
	code, body := doJSON(t, app, req)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, float64(404), body["upstreamStatus"])
	assert.Equal(t, "NotFoundError", body["message"])
}

func TestSensorHistoryErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("sensor 7 history: %w", providers.ErrCircuitOpen), http.StatusServiceUnavailable},
		{providers.ErrMissingAPIKey, http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("dial tcp: connection refused"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			app := newTestApp(&stubUpstream{history: func(airquality.HistoryRequest) (airquality.HistoryResult, error) {
				return airquality.HistoryResult{}, tc.err
			}})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors/7/history?start=2022/06/01&end=2022/06/02", nil)
			code, _ := doJSON(t, app, req)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestKeyCheck(t *testing.T) {
	up := &stubUpstream{keyType: "READ"}
	app := newTestApp(up)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/keys/check", nil)
	req.Header.Set("X-API-Key", "good")
	code, body := doJSON(t, app, req)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "READ", body["keyType"])
	assert.Equal(t, "good", up.lastKey)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/keys/check", nil)
	req.Header.Set("X-API-Key", "bad")
	code, body = doJSON(t, app, req)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, float64(403), body["upstreamStatus"])
}

func TestCatalogSearch(t *testing.T) {
	var got airquality.CatalogQuery
	app := newTestApp(&stubUpstream{search: func(q airquality.CatalogQuery) (airquality.CatalogResult, error) {
		got = q
		return airquality.CatalogResult{
			Outcome: airquality.Success(200),
			Payload: json.RawMessage(`{"features":[{"id":"S2A_1","properties":{"eo:cloud_cover":3.5}}]}`),
		}, nil
	}})

	body := `{"start":"2022/06/01","end":"2022/06/02","bbox":[-112.1,40.6,-111.7,40.9]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	code, out := doJSON(t, app, req)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), out["count"])
	assert.Equal(t, airquality.BBox{-112.1, 40.6, -111.7, 40.9}, got.BBox)

	records := out["records"].([]interface{})
	assert.Equal(t, "S2A_1", records[0].(map[string]interface{})["id"])
}

func TestCatalogSearchRequiresBBox(t *testing.T) {
	searched := false
	app := newTestApp(&stubUpstream{search: func(airquality.CatalogQuery) (airquality.CatalogResult, error) {
		searched = true
		return airquality.CatalogResult{Outcome: airquality.Success(200), Payload: json.RawMessage(`{"features":[]}`)}, nil
	}})

	for _, body := range []string{
		`{"start":"2022/06/01","end":"2022/06/02"}`,
		`{"start":"2022/06/01","end":"2022/06/02","bbox":[0,0,0,0]}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog/search", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		code, out := doJSON(t, app, req)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.Equal(t, "bbox is required", out["message"])
	}
	assert.False(t, searched)
}

func TestCatalogSearchRejectsMissingDates(t *testing.T) {
	app := newTestApp(&stubUpstream{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog/search", strings.NewReader(`{"bbox":[0,0,1,1]}`))
	req.Header.Set("Content-Type", "application/json")
	code, _ := doJSON(t, app, req)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAnalysisLifecycle(t *testing.T) {
	app := newTestApp(&stubUpstream{history: okHistory})

	code, _ := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/analysis/latest", nil))
	assert.Equal(t, http.StatusNotFound, code)

	code, report := doJSON(t, app, httptest.NewRequest(http.MethodPost, "/api/v1/analysis/run", nil))
	require.Equal(t, http.StatusOK, code)
	id := report["id"]
	assert.NotEmpty(t, id)

	average := report["average"].(map[string]interface{})
	rows := average["rows"].([]interface{})
	require.Len(t, rows, 1)
	// mean of 61 and 62
	assert.Equal(t, []interface{}{float64(1654041600), 61.5, 1.5}, rows[0])

	code, latest := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/analysis/latest", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, latest["id"])

	now := time.Now().Unix()
	target := fmt.Sprintf("/api/v1/analysis/history?from=%d&to=%d", now-3600, now+3600)
	code, hist := doJSON(t, app, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, hist["reports"], 1)

	code, _ = doJSON(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/analysis/history", nil))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAnalysisRunWithBody(t *testing.T) {
	app := newTestApp(&stubUpstream{history: okHistory})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/run", strings.NewReader(`{"sensorIds":[5]}`))
	req.Header.Set("Content-Type", "application/json")
	code, report := doJSON(t, app, req)
	require.Equal(t, http.StatusOK, code)

	plan := report["plan"].(map[string]interface{})
	assert.Equal(t, []interface{}{float64(5)}, plan["sensorIds"])
	assert.Equal(t, "2022/06/01", plan["start"])

	code, _ = doJSON(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/analysis/latest?sensorIds=5", nil))
	assert.Equal(t, http.StatusOK, code)
}

func TestAnalysisRunAllSensorsFail(t *testing.T) {
	app := newTestApp(&stubUpstream{history: func(req airquality.HistoryRequest) (airquality.HistoryResult, error) {
		return airquality.HistoryResult{SensorID: req.SensorID, Outcome: airquality.Failure(500, "Internal Server Error")}, nil
	}})

	code, body := doJSON(t, app, httptest.NewRequest(http.MethodPost, "/api/v1/analysis/run", nil))
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Len(t, body["sensors"], 2)
}
