package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
)

func catalogQuery() airquality.CatalogQuery {
	return airquality.CatalogQuery{
		Start: "2022/06/01",
		End:   "2022/08/31",
		BBox:  airquality.BBox{-1.25, 52.9, -1.05, 53.05},
	}
}

func TestSTACSearchRequestShape(t *testing.T) {
	const body = `{"type":"FeatureCollection","features":[{"id":"S2B_30UWD_20220601_0_L2A","properties":{"datetime":"2022-06-01T11:06:53Z"}}]}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "application/geo+json", r.Header.Get("Accept"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"bbox": [-1.25, 52.9, -1.05, 53.05],
			"limit": 10000,
			"datetime": "2022-06-01T00:00:00Z/2022-08-31T00:00:00Z",
			"collections": ["sentinel-2-l2a", "landsat-c2-l2"],
			"fields": {
				"include": ["properties", "id"],
				"exclude": ["bbox", "geometry", "assets", "stac_version", "stac_extensions", "type"]
			}
		}`, string(raw))

		w.Header().Set("Content-Type", "application/geo+json")
		w.Write([]byte(body))
	}))
	defer server.Close()

	p := NewSTACProvider(server.Client(), WithBaseURL(server.URL+"/"))
	res, err := p.Search(context.Background(), catalogQuery())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, body, string(res.Payload))

	recs, err := res.Records()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "S2B_30UWD_20220601_0_L2A", recs[0].ID)
}

func TestSTACSearchOverrides(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got searchBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, []string{"sentinel-2-l2a"}, got.Collections)
		assert.Equal(t, 50, got.Limit)
		w.Write([]byte(`{"features":[]}`))
	}))
	defer server.Close()

	q := catalogQuery()
	q.Collections = []string{"sentinel-2-l2a"}
	q.Limit = 50

	res, err := NewSTACProvider(server.Client(), WithBaseURL(server.URL)).Search(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestSTACSearchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"BadRequest","description":"datetime is invalid"}`))
	}))
	defer server.Close()

	res, err := NewSTACProvider(server.Client(), WithBaseURL(server.URL)).Search(context.Background(), catalogQuery())
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "datetime is invalid", res.Message)
}

func TestSTACSearchInputErrors(t *testing.T) {
	p := NewSTACProvider(http.DefaultClient, WithBaseURL("http://127.0.0.1:0"))

	q := catalogQuery()
	q.BBox = airquality.BBox{10, 0, 5, 1}
	_, err := p.Search(context.Background(), q)
	assert.ErrorIs(t, err, airquality.ErrInvalidBBox)

	q = catalogQuery()
	q.End = "2022/05/01"
	_, err = p.Search(context.Background(), q)
	assert.ErrorIs(t, err, airquality.ErrInvalidRange)
}
