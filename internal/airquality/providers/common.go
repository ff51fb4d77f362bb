package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/airquality-aggregation/internal/logger"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff issues a single request with no retries.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      0,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

var (
	// ErrCircuitOpen is returned while a provider's breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrMissingAPIKey is returned when no credential is available.
	ErrMissingAPIKey = errors.New("api key is not configured")

	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// Option customizes a provider.
type Option func(*options)

type options struct {
	baseURL string
	backoff BackoffConfig
	log     logger.Logger
}

// WithBaseURL overrides the upstream base URL.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithBackoff sets the retry policy.
func WithBackoff(b BackoffConfig) Option {
	return func(o *options) { o.backoff = b }
}

// WithLogger sets the provider logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(defaultBaseURL string, opts []Option) options {
	o := options{baseURL: defaultBaseURL, backoff: DefaultBackoff, log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// upstreamResponse is a fully read HTTP response.
type upstreamResponse struct {
	StatusCode int
	Body       []byte
}

// retryableStatus reports whether a status is worth another attempt.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. Only transport errors count against the breaker; any
// response that arrives is returned to the caller as a value. Transport
// errors, 429 and 5xx are retried; once retries are exhausted the last
// response is returned as-is so the caller can report its status.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (upstreamResponse, error) {
	if cfg.Client == nil {
		return upstreamResponse{}, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || (cfg.Backoff.MaxRetries > 0 && cfg.Backoff.InitialInterval <= 0) {
		return upstreamResponse{}, errInvalidConfig
	}

	var attempt int

	for {
		if ctx.Err() != nil {
			return upstreamResponse{}, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return upstreamResponse{}, err
		}

		// Ensure the request obeys context cancellation.
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			defer resp.Body.Close()

			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, fmt.Errorf("reading response body: %w", readErr)
			}
			return upstreamResponse{StatusCode: resp.StatusCode, Body: body}, nil
		})

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return upstreamResponse{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}

		if err == nil {
			resp, ok := result.(upstreamResponse)
			if !ok {
				return upstreamResponse{}, fmt.Errorf("unexpected result type from circuit breaker")
			}
			if !retryableStatus(resp.StatusCode) || attempt >= cfg.Backoff.MaxRetries {
				return resp, nil
			}
		} else if attempt >= cfg.Backoff.MaxRetries {
			return upstreamResponse{}, err
		}

		// Backoff with exponential delay.
		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return upstreamResponse{}, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

// failureMessage extracts a readable message from an error body. JSON
// bodies with error/description keys (the sensor API's error shape) are
// condensed; anything else is returned trimmed.
func failureMessage(status int, body []byte) string {
	var apiErr struct {
		Error       string `json:"error"`
		Description string `json:"description"`
	}
	if json.Unmarshal(body, &apiErr) == nil && (apiErr.Error != "" || apiErr.Description != "") {
		switch {
		case apiErr.Error == "":
			return apiErr.Description
		case apiErr.Description == "":
			return apiErr.Error
		default:
			return apiErr.Error + ": " + apiErr.Description
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return http.StatusText(status)
	}
	return msg
}
