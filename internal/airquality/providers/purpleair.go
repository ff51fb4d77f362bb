package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/logger"
)

// DefaultPurpleAirBaseURL is the public sensor API root.
const DefaultPurpleAirBaseURL = "https://api.purpleair.com"

// PurpleAirProvider implements airquality.HistoryFetcher and
// airquality.KeyChecker for the PurpleAir sensor API.
type PurpleAirProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     logger.Logger
}

func NewPurpleAirProvider(client *http.Client, apiKey string, opts ...Option) *PurpleAirProvider {
	o := buildOptions(DefaultPurpleAirBaseURL, opts)

	return &PurpleAirProvider{
		name:    "purpleair",
		apiKey:  apiKey,
		baseURL: o.baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: o.backoff,
		},
		circuit: newCircuitBreaker("purpleair"),
		log:     o.log.WithField("component", "purpleair_provider"),
	}
}

func (p *PurpleAirProvider) Name() string {
	return p.name
}

func (p *PurpleAirProvider) key(override string) string {
	if override != "" {
		return override
	}
	return p.apiKey
}

// History requests daily-averaged readings for one sensor between two
// calendar dates. A non-200 response is returned as a failed result.
func (p *PurpleAirProvider) History(ctx context.Context, req airquality.HistoryRequest) (airquality.HistoryResult, error) {
	res := airquality.HistoryResult{SensorID: req.SensorID, Fields: req.FieldList()}

	key := p.key(req.APIKey)
	if key == "" {
		return res, ErrMissingAPIKey
	}
	if req.SensorID <= 0 {
		return res, fmt.Errorf("invalid sensor id %d", req.SensorID)
	}
	if len(res.Fields) == 0 {
		return res, fmt.Errorf("no fields requested for sensor %d", req.SensorID)
	}
	window, err := airquality.ParseDateRange(req.Start, req.End)
	if err != nil {
		return res, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("fields", req.Fields)
		values.Set("start_timestamp", strconv.FormatInt(window.Start.Unix(), 10))
		values.Set("end_timestamp", strconv.FormatInt(window.End.Unix(), 10))
		values.Set("average", strconv.Itoa(airquality.DailyAverageMinutes))

		u := fmt.Sprintf("%s/v1/sensors/%d/history?%s", p.baseURL, req.SensorID, values.Encode())
		r, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		r.Header.Set("X-API-Key", key)
		return r, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return res, fmt.Errorf("sensor %d history: %w", req.SensorID, err)
	}

	if resp.StatusCode != http.StatusOK {
		res.Outcome = airquality.Failure(resp.StatusCode, failureMessage(resp.StatusCode, resp.Body))
		p.log.Warnf("sensor %d history failed: status %d: %s", req.SensorID, resp.StatusCode, res.Message)
		return res, nil
	}
	if !json.Valid(resp.Body) {
		return res, fmt.Errorf("sensor %d history: response is not valid JSON", req.SensorID)
	}

	res.Outcome = airquality.Success(resp.StatusCode)
	res.Payload = json.RawMessage(resp.Body)
	p.log.Debugf("sensor %d history fetched (%d bytes)", req.SensorID, len(resp.Body))
	return res, nil
}

// CheckKey asks the key endpoint whether key is accepted.
func (p *PurpleAirProvider) CheckKey(ctx context.Context, key string) (airquality.KeyCheckResult, error) {
	key = p.key(key)
	if key == "" {
		return airquality.KeyCheckResult{}, ErrMissingAPIKey
	}

	buildRequest := func() (*http.Request, error) {
		r, err := http.NewRequest(http.MethodGet, p.baseURL+"/v1/keys", nil)
		if err != nil {
			return nil, err
		}
		r.Header.Set("X-API-Key", key)
		return r, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return airquality.KeyCheckResult{}, fmt.Errorf("checking key: %w", err)
	}

	out := airquality.KeyCheckResult{Body: string(resp.Body)}
	if resp.StatusCode != http.StatusOK {
		out.Outcome = airquality.Failure(resp.StatusCode, failureMessage(resp.StatusCode, resp.Body))
		return out, nil
	}

	out.Outcome = airquality.Success(resp.StatusCode)
	var payload struct {
		APIKeyType string `json:"api_key_type"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err == nil {
		out.KeyType = payload.APIKeyType
	}
	return out, nil
}
