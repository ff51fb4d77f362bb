package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/logger"
)

// DefaultSTACBaseURL is the Earth Search catalog root.
const DefaultSTACBaseURL = "https://earth-search.aws.element84.com/v1"

// STACProvider implements airquality.CatalogSearcher against a STAC API.
type STACProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     logger.Logger
}

func NewSTACProvider(client *http.Client, opts ...Option) *STACProvider {
	o := buildOptions(DefaultSTACBaseURL, opts)

	return &STACProvider{
		name:    "stac",
		baseURL: o.baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: o.backoff,
		},
		circuit: newCircuitBreaker("stac"),
		log:     o.log.WithField("component", "stac_provider"),
	}
}

func (p *STACProvider) Name() string {
	return p.name
}

type searchFields struct {
	Include []string `json:"include"`
	Exclude []string `json:"exclude"`
}

type searchBody struct {
	BBox        []float64    `json:"bbox"`
	Limit       int          `json:"limit"`
	Datetime    string       `json:"datetime"`
	Collections []string     `json:"collections"`
	Fields      searchFields `json:"fields"`
}

func newSearchBody(q airquality.CatalogQuery, interval string) searchBody {
	collections := q.Collections
	if len(collections) == 0 {
		collections = airquality.CatalogCollections
	}
	limit := q.Limit
	if limit <= 0 {
		limit = airquality.CatalogLimit
	}
	return searchBody{
		BBox:        q.BBox[:],
		Limit:       limit,
		Datetime:    interval,
		Collections: collections,
		Fields: searchFields{
			Include: airquality.CatalogInclude,
			Exclude: airquality.CatalogExclude,
		},
	}
}

// Search posts a catalog query. A non-200 response is returned as a failed result.
func (p *STACProvider) Search(ctx context.Context, q airquality.CatalogQuery) (airquality.CatalogResult, error) {
	if err := q.BBox.Validate(); err != nil {
		return airquality.CatalogResult{}, err
	}
	interval, err := airquality.RFC3339Interval(q.Start, q.End)
	if err != nil {
		return airquality.CatalogResult{}, err
	}

	payload, err := json.Marshal(newSearchBody(q, interval))
	if err != nil {
		return airquality.CatalogResult{}, fmt.Errorf("encoding search body: %w", err)
	}

	buildRequest := func() (*http.Request, error) {
		r, err := http.NewRequest(http.MethodPost, p.baseURL+"/search", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Accept", "application/geo+json")
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return airquality.CatalogResult{}, fmt.Errorf("catalog search: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := failureMessage(resp.StatusCode, resp.Body)
		p.log.Warnf("catalog search failed: status %d: %s", resp.StatusCode, msg)
		return airquality.CatalogResult{Outcome: airquality.Failure(resp.StatusCode, msg)}, nil
	}
	if !json.Valid(resp.Body) {
		return airquality.CatalogResult{}, fmt.Errorf("catalog search: response is not valid JSON")
	}

	p.log.Debugf("catalog search %s returned %d bytes", interval, len(resp.Body))
	return airquality.CatalogResult{
		Outcome: airquality.Success(resp.StatusCode),
		Payload: json.RawMessage(resp.Body),
	}, nil
}
