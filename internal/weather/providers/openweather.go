package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Default OpenWeatherMap endpoints.
const (
	DefaultGeoURL  = "https://api.openweathermap.org/geo/1.0"
	DefaultDataURL = "https://api.openweathermap.org/data/2.5"
	DefaultProURL  = "https://pro.openweathermap.org/data/2.5"
)

var errMissingAPIKey = errors.New("openweather api key is not configured")

// OpenWeatherURLs holds the base URLs of the geocoding, data and pro APIs.
type OpenWeatherURLs struct {
	Geo  string
	Data string
	Pro  string
}

// OpenWeatherProvider calls OpenWeatherMap and returns the upstream JSON verbatim.
// It is the only component that holds the API key.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	urls    OpenWeatherURLs
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewOpenWeatherProvider creates the provider. Empty URLs fall back to the public endpoints.
func NewOpenWeatherProvider(client *http.Client, apiKey string, urls OpenWeatherURLs, logger *zap.Logger) *OpenWeatherProvider {
	if urls.Geo == "" {
		urls.Geo = DefaultGeoURL
	}
	if urls.Data == "" {
		urls.Data = DefaultDataURL
	}
	if urls.Pro == "" {
		urls.Pro = DefaultProURL
	}

	return &OpenWeatherProvider{
		name:   "openweathermap",
		apiKey: apiKey,
		urls:   urls,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newBreaker("openweather", logger),
		logger:  logger,
	}
}

// WithBackoff overrides the retry policy.
func (p *OpenWeatherProvider) WithBackoff(b BackoffConfig) *OpenWeatherProvider {
	p.httpCfg.Backoff = b
	return p
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// DirectGeocode returns the candidates of the direct geocoding API.
func (p *OpenWeatherProvider) DirectGeocode(ctx context.Context, q string, limit int) (json.RawMessage, error) {
	values := url.Values{}
	values.Set("q", q)
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	return p.get(ctx, p.urls.Geo+"/direct", values)
}

// Current returns the current conditions snapshot for lat/lon.
func (p *OpenWeatherProvider) Current(ctx context.Context, lat, lon string) (json.RawMessage, error) {
	return p.get(ctx, p.urls.Data+"/weather", coordValues(lat, lon))
}

// Hourly returns the hourly forecast list for lat/lon.
func (p *OpenWeatherProvider) Hourly(ctx context.Context, lat, lon string) (json.RawMessage, error) {
	return p.get(ctx, p.urls.Pro+"/forecast/hourly", coordValues(lat, lon))
}

// Daily returns cnt daily forecast entries for lat/lon.
func (p *OpenWeatherProvider) Daily(ctx context.Context, lat, lon string, cnt int) (json.RawMessage, error) {
	values := coordValues(lat, lon)
	if cnt > 0 {
		values.Set("cnt", strconv.Itoa(cnt))
	}
	return p.get(ctx, p.urls.Data+"/forecast/daily", values)
}

func (p *OpenWeatherProvider) get(ctx context.Context, endpoint string, values url.Values) (json.RawMessage, error) {
	if p.apiKey == "" {
		return nil, errMissingAPIKey
	}
	values.Set("appid", p.apiKey)

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		u := fmt.Sprintf("%s?%s", endpoint, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	body, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, p.logger, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", p.name, endpoint, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s %s: invalid json payload", p.name, endpoint)
	}
	return json.RawMessage(body), nil
}

func coordValues(lat, lon string) url.Values {
	values := url.Values{}
	values.Set("lat", lat)
	values.Set("lon", lon)
	return values
}
